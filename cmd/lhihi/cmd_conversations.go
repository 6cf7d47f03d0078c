package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lhihi/internal/store"
	"lhihi/internal/types"
)

var conversationsLimit int

// conversationsCmd manages stored conversations
var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage stored conversations",
	RunE:    runConversationsList,
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print every turn of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its turns",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

func init() {
	conversationsCmd.PersistentFlags().IntVarP(&conversationsLimit, "limit", "n", 20, "Maximum conversations to list")
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsDeleteCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	return store.Open(cmd.Context(), cfg.Store)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	convs, err := st.ListConversations(cmd.Context(), conversationsLimit)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations found.")
		return nil
	}
	for _, c := range convs {
		fmt.Fprintf(out, "%s  %s  %s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Title)
	}
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	conv, err := st.GetConversation(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	turns, err := st.ListTurns(cmd.Context(), conv.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(conv.Title))
	for _, t := range turns {
		fmt.Fprintf(out, "\n%s\n%s\n", turnLabel(t), strings.TrimSpace(t.Text))
		if len(t.Sources) > 0 {
			fmt.Fprintln(out, mutedStyle.Render("sources: "+strings.Join(t.Sources, ", ")))
		}
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteConversation(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %s\n", args[0])
	return nil
}

func turnLabel(t types.ConversationTurn) string {
	if t.Role == types.RoleUser {
		return userLabelStyle.Render("You")
	}
	return botLabelStyle.Render("Lhihi")
}
