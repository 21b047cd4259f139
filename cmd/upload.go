package main

import (
	"encoding/json"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/workflow"
)

var uploadRegister bool

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a purchase order document and print the extracted draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("upload"); err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		path := args[0]
		content, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "read %s", path)
		}

		doc := workflow.Document{
			Filename:  filepath.Base(path),
			MediaType: detectMediaType(path, content),
			Content:   content,
		}

		if err := e.orchestrator.SubmitDocument(ctx, doc); err != nil {
			return err
		}

		record := e.session.Record()
		if msg := e.session.LastInfo(); msg != "" {
			zap.L().Info(msg)
		}

		if uploadRegister {
			receipt, err := e.transaction.Register(ctx, "", record)
			if err != nil {
				return err
			}
			zap.L().Info("purchase order registered", zap.String("id", receipt.ID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

// detectMediaType resolves the document media type from the file extension,
// falling back to content sniffing for unknown extensions.
func detectMediaType(path string, content []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return http.DetectContentType(content)
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadRegister, "register", false, "register the extracted record without interactive review")
	rootCmd.AddCommand(uploadCmd)
}
