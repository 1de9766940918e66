package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/browser-infra/buildtools/internal/cmdutils"
	"github.com/google/uuid"
)

// Notarization statuses reported by notarytool.
const (
	statusAccepted   = "Accepted"
	statusInProgress = "In Progress"
)

const staplerRetryDelay = 5 * time.Second

// NotarizationError is returned when Apple rejects a submission.
type NotarizationError struct {
	ID     uuid.UUID
	Status string
	Log    string
}

func (e NotarizationError) Error() string {
	return fmt.Sprintf("notarization of %s ended with status %q", e.ID, e.Status)
}

type notarytoolResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (p Pipeline) notarytool(ctx context.Context, cfg Config, args ...string) (notarytoolResult, error) {
	args = append([]string{"notarytool"}, args...)
	args = append(args, "--output-format", "json", "--apple-id", cfg.NotaryUser, "--team-id", cfg.NotaryTeamID, "--password", cfg.NotaryPassword)

	res, err := p.runner.Run(ctx, cmdutils.Command{Name: "xcrun", Args: args})
	if err != nil {
		return notarytoolResult{}, err
	}
	var r notarytoolResult
	if err := json.Unmarshal(res.Stdout.Bytes(), &r); err != nil {
		return notarytoolResult{}, fmt.Errorf("could not decode notarytool output: %v", err)
	}
	return r, nil
}

// Notarize submits path for notarization and returns the submission ID.
func (p Pipeline) Notarize(ctx context.Context, path string, cfg Config) (uuid.UUID, error) {
	r, err := p.notarytool(ctx, cfg, "submit", path, "--no-wait")
	if err != nil {
		return uuid.Nil, fmt.Errorf("could not submit %s for notarization: %w", path, err)
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("notarytool returned an invalid submission ID %q: %v", r.ID, err)
	}
	p.log.Info("Submitted for notarization", "path", path, "id", id)
	return id, nil
}

// WaitForResults polls the submissions until each one reached a final status. Every
// rejected submission is reported in the returned error.
func (p Pipeline) WaitForResults(ctx context.Context, ids []uuid.UUID, cfg Config) error {
	pending := make(map[uuid.UUID]bool)
	for _, id := range ids {
		pending[id] = true
	}

	var errs error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		for _, id := range ids {
			if !pending[id] {
				continue
			}
			r, err := p.notarytool(ctx, cfg, "info", id.String())
			if err != nil {
				return errors.Join(errs, err)
			}
			switch r.Status {
			case statusInProgress:
				continue
			case statusAccepted:
				p.log.Info("Notarization accepted", "id", id)
			default:
				nerr := NotarizationError{ID: id, Status: r.Status}
				if res, err := p.runner.Run(ctx, cmdutils.Command{Name: "xcrun", Args: []string{"notarytool", "log", id.String(),
					"--apple-id", cfg.NotaryUser, "--team-id", cfg.NotaryTeamID, "--password", cfg.NotaryPassword}}); err == nil {
					nerr.Log = res.Stdout.String()
				}
				p.log.Error("Notarization failed", "id", id, "status", r.Status, "log", nerr.Log)
				errs = errors.Join(errs, nerr)
			}
			delete(pending, id)
		}
		if len(pending) == 0 {
			return errs
		}

		select {
		case <-ctx.Done():
			return errors.Join(errs, ctx.Err())
		case <-time.After(p.pollInterval):
		}
	}
}

// Staple attaches the notarization ticket to path.
func (p Pipeline) Staple(ctx context.Context, path string) error {
	_, err := p.runner.Run(ctx, cmdutils.Command{
		Name:       "xcrun",
		Args:       []string{"stapler", "staple", "--verbose", path},
		Retries:    3,
		RetryDelay: staplerRetryDelay,
	})
	return err
}
