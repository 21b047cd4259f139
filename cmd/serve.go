package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/po-intake/internal/model"
	"github.com/sells-group/po-intake/internal/submit"
	"github.com/sells-group/po-intake/internal/workflow"
)

// Uploaded documents are held in memory while they travel to the extraction
// service; anything bigger than this is not a purchase order scan.
const maxUploadBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newServeMux(e),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newServeMux builds the intake routes over the wired environment.
func newServeMux(e *env) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /intake/upload", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "a file part named \"file\" is required")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read the uploaded file")
			return
		}

		mediaType := header.Header.Get("Content-Type")
		if mediaType == "" {
			mediaType = detectMediaType(header.Filename, content)
		}

		doc := workflow.Document{
			Filename:  header.Filename,
			MediaType: mediaType,
			Content:   content,
		}
		if err := e.orchestrator.SubmitDocument(r.Context(), doc); err != nil {
			writeWorkflowError(w, e, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"state":   e.session.State(),
			"message": e.session.LastInfo(),
			"record":  e.session.Record(),
		})
	})

	mux.HandleFunc("POST /intake/register", func(w http.ResponseWriter, r *http.Request) {
		var record model.PurchaseOrder
		if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		receipt, err := e.transaction.Register(r.Context(), "", &record)
		if err != nil {
			switch {
			case errors.Is(err, model.ErrValidation):
				writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
			case errors.Is(err, submit.ErrRegistrationFailed):
				writeError(w, http.StatusBadGateway, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		writeJSON(w, http.StatusCreated, receipt)
	})

	mux.HandleFunc("GET /intake/runs", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		runs, err := e.store.ListRuns(r.Context(), limit)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not list intake runs")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return mux
}

// writeWorkflowError maps workflow failures onto HTTP statuses, surfacing the
// session's user-facing message rather than the raw error chain.
func writeWorkflowError(w http.ResponseWriter, e *env, err error) {
	msg := e.session.LastError()
	if msg == "" {
		msg = "document intake failed"
	}

	switch {
	case errors.Is(err, workflow.ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, msg)
	case errors.Is(err, workflow.ErrExtractionTimeout):
		writeError(w, http.StatusGatewayTimeout, msg)
	case errors.Is(err, workflow.ErrSuperseded):
		writeError(w, http.StatusConflict, "a newer document submission took over")
	case errors.Is(err, workflow.ErrExtractionRejected), errors.Is(err, workflow.ErrExtractionEmpty):
		writeError(w, http.StatusUnprocessableEntity, msg)
	default:
		zap.L().Error("document intake failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
