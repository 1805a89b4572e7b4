package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/opportunity-intake/internal/apperr"
	"github.com/sells-group/opportunity-intake/internal/submission"
)

var (
	submitCompany     string
	submitType        string
	submitContentFile string
	submitBy          string
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit one opportunity and print the stored record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		manual, err := readManualContent(cmd.InOrStdin(), submitContentFile)
		if err != nil {
			return err
		}

		env, err := initIntake(ctx, "submit")
		if err != nil {
			return err
		}
		defer env.Close()

		o, err := env.Coordinator.Submit(ctx, submission.Request{
			URL:             args[0],
			CompanyName:     submitCompany,
			OpportunityType: submitType,
			ManualContent:   manual,
			SubmittedBy:     submitBy,
		})
		if err != nil {
			return describeSubmitError(cmd.ErrOrStderr(), err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	},
}

// readManualContent reads pasted posting text from a file, or from stdin
// when path is "-".
func readManualContent(stdin io.Reader, path string) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", eris.Wrap(err, "read content from stdin")
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "read content file %s", path)
		}
		return string(b), nil
	}
}

// describeSubmitError prints the user-facing parts of a classified error
// and returns it.
func describeSubmitError(w io.Writer, err error) error {
	ae, ok := apperr.As(err)
	if !ok {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"error":           ae.Message,
		"kind":            ae.Kind,
		"requires_manual": ae.RequiresManual,
		"guidance":        ae.Guidance,
		"conflict":        ae.Conflict,
	})
	return err
}

func init() {
	submitCmd.Flags().StringVar(&submitCompany, "company", "", "company name override")
	submitCmd.Flags().StringVar(&submitType, "type", "", "opportunity type: internship, full_time, research, fellowship, scholarship")
	submitCmd.Flags().StringVar(&submitContentFile, "content-file", "", "file with pasted posting text (- for stdin)")
	submitCmd.Flags().StringVar(&submitBy, "submitted-by", "", "submitter id recorded with the opportunity")
	rootCmd.AddCommand(submitCmd)
}
