package tempmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailTM struct {
	domainsStatus  int
	domainsBody    string
	accountsStatus int
	accountsBody   string
	gotAddress     string
	gotPassword    string
}

func (f *fakeMailTM) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/domains":
			w.WriteHeader(f.domainsStatus)
			_, _ = w.Write([]byte(f.domainsBody))
		case r.Method == http.MethodPost && r.URL.Path == "/accounts":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.gotAddress, f.gotPassword = body["address"], body["password"]
			w.WriteHeader(f.accountsStatus)
			_, _ = w.Write([]byte(f.accountsBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okFake() *fakeMailTM {
	return &fakeMailTM{
		domainsStatus:  http.StatusOK,
		domainsBody:    `[{"id":"d1","domain":"mail.example"},{"id":"d2","domain":"other.example"}]`,
		accountsStatus: http.StatusCreated,
		accountsBody:   `{"id":"acct-1","address":"x"}`,
	}
}

func TestCreateTempMail(t *testing.T) {
	fake := okFake()
	srv := fake.server(t)

	out, err := Tool(NewClient(srv.URL, srv.Client())).Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9]{10}@mail\.example$`), fake.gotAddress)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9]{12}$`), fake.gotPassword)

	want := "Success! Here is your temporary email account:\n" +
		"• **Email:** `" + fake.gotAddress + "`\n" +
		"• **Password:** `" + fake.gotPassword + "`\n\n" +
		"You can use this to sign up for services. I can check the inbox for you later if you ask."
	assert.Equal(t, want, out)
}

func TestCreateTempMailHydraDomains(t *testing.T) {
	fake := okFake()
	fake.domainsBody = `{"hydra:member":[{"domain":"hydra.example"}],"hydra:totalItems":1}`
	srv := fake.server(t)

	acct, err := NewClient(srv.URL, srv.Client()).CreateAccount(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(acct.Address, "@hydra.example"))
	assert.Equal(t, "acct-1", acct.ID)
}

func TestCreateTempMailFailures(t *testing.T) {
	const prefix = "Error: An unexpected error occurred while trying to create the temporary email. "

	tests := []struct {
		name   string
		mutate func(*fakeMailTM)
		reason string
	}{
		{"domains non-2xx", func(f *fakeMailTM) { f.domainsStatus = http.StatusServiceUnavailable }, "Failed to fetch available domains."},
		{"no domains", func(f *fakeMailTM) { f.domainsBody = `[]` }, "No available domains found."},
		{"accounts non-2xx", func(f *fakeMailTM) {
			f.accountsStatus = http.StatusUnprocessableEntity
			f.accountsBody = `{"detail":"address taken"}`
		}, "Failed to create account. Status: 422"},
		{"missing id", func(f *fakeMailTM) { f.accountsBody = `{"address":"x"}` }, "Account creation did not return a valid ID."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := okFake()
			tt.mutate(fake)
			srv := fake.server(t)

			out, err := Tool(NewClient(srv.URL, srv.Client())).Execute(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, prefix+tt.reason, out)
		})
	}
}

func TestRandomString(t *testing.T) {
	s, err := randomString(32)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	assert.Regexp(t, `^[a-z0-9]+$`, s)
}
