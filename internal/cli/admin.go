package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"festive-quiz-service/internal/client"
	"festive-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

type adminFlags struct {
	server      string
	credentials string
}

func (f *adminFlags) client() *client.AdminClient {
	auth := client.NewAuthContext(client.FileCredentialStore{Path: f.credentials})
	return client.NewAdminClient(f.server, auth, nil)
}

// NewAdminCmd groups the admin API commands.
func NewAdminCmd() *cobra.Command {
	envServer := os.Getenv("QUIZ_SERVER")
	if envServer == "" {
		envServer = "http://localhost:8080"
	}
	flags := &adminFlags{}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage quizzes through the admin API",
	}
	cmd.PersistentFlags().StringVar(&flags.server, "server", envServer, "quiz service base URL")
	cmd.PersistentFlags().StringVar(&flags.credentials, "credentials", client.DefaultCredentialPath(), "file holding saved admin credentials")

	cmd.AddCommand(
		newAdminLoginCmd(flags),
		newAdminLogoutCmd(flags),
		newAdminQuizzesCmd(flags),
		newAdminCreateQuizCmd(flags),
		newAdminAddQuestionCmd(flags),
		newAdminResetCmd(flags),
	)
	return cmd
}

func newAdminLoginCmd(flags *adminFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify admin credentials and save them",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			creds := client.Credentials{Username: username, Password: password}
			if err := flags.client().Login(cmd.Context(), creds); err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					return errors.New("invalid username or password")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	return cmd
}

// readPassword takes QUIZ_ADMIN_PASSWORD when set, otherwise one line from in.
func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	if pw := os.Getenv("QUIZ_ADMIN_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(prompt, "password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func newAdminLogoutCmd(flags *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget saved admin credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.client().Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newAdminQuizzesCmd(flags *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quizzes",
		Short: "List quizzes",
		RunE: func(cmd *cobra.Command, args []string) error {
			quizzes, err := flags.client().ListQuizzes(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tSTATUS\tTITLE")
			for _, q := range quizzes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.ID, q.JoinCode, q.Status, q.Title)
			}
			return w.Flush()
		},
	}
}

func newAdminCreateQuizCmd(flags *adminFlags) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "create-quiz TITLE",
		Short: "Create a quiz, generating a join code unless --code is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz, err := flags.client().CreateQuiz(cmd.Context(), args[0], code)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created quiz %s with join code %s\n", quiz.ID, quiz.JoinCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "join code to use")
	return cmd
}

func newAdminAddQuestionCmd(flags *adminFlags) *cobra.Command {
	var (
		in    client.QuestionInput
		qType string
		order int
	)
	cmd := &cobra.Command{
		Use:   "add-question QUIZ_ID TEXT",
		Short: "Append a question to a quiz",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Text = args[1]
			in.Type = domain.QuestionType(qType)
			if cmd.Flags().Changed("order") {
				in.OrderIndex = &order
			}
			question, err := flags.client().AddQuestion(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added question %s at position %d\n", question.ID, question.OrderIndex)
			return nil
		},
	}
	cmd.Flags().StringVar(&qType, "type", string(domain.MultipleChoice), "multiple_choice or text")
	cmd.Flags().StringSliceVar(&in.Options, "option", nil, "answer option (repeatable)")
	cmd.Flags().StringSliceVar(&in.CorrectAnswers, "correct", nil, "accepted answer (repeatable)")
	cmd.Flags().IntVar(&order, "order", 0, "position in the play order")
	cmd.Flags().StringVar(&in.ImageURL, "image", "", "image URL")
	cmd.Flags().StringVar(&in.Category, "category", "", "category label")
	return cmd
}

func newAdminResetCmd(flags *adminFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset QUIZ_ID",
		Short: "Remove all players and reopen a quiz for joining",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz, err := flags.client().ResetQuiz(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "quiz %s is %s again\n", quiz.ID, quiz.Status)
			return nil
		},
	}
}
