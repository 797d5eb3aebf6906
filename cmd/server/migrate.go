package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/greenprint/internal/db"
	"github.com/soaringjerry/greenprint/internal/services"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	var (
		file  string
		email string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Prepare storage and optionally import a browser localStorage export",
		Long: `migrate opens the configured store, which applies pending SQL migrations
for the sqlite driver. With --file it also imports a JSON object holding the
browser keys (user, surveyData, footprint, insights, likedInsights,
dislikedInsights, savedInsights) into the profile of --email, or of the
exported user when --email is empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg.Log)
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			logger.Info("storage ready", "driver", cfg.Storage.Driver)
			if file == "" {
				return nil
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			uid, keys, err := importExport(ctx, store, f, email)
			if err != nil {
				return err
			}
			logger.Info("imported browser data", "uid", uid, "keys", keys)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "localStorage export (JSON object)")
	cmd.Flags().StringVar(&email, "email", "", "Profile email; defaults to the exported user")
	return cmd
}

var importableKeys = map[string]bool{
	services.KeyUser:             true,
	services.KeySurveyData:       true,
	services.KeyFootprint:        true,
	services.KeyInsights:         true,
	services.KeyLikedInsights:    true,
	services.KeyDislikedInsights: true,
	services.KeySavedInsights:    true,
}

// importExport writes the known keys of a localStorage dump into one profile.
// localStorage holds strings, so values may be JSON text or already-decoded JSON.
func importExport(ctx context.Context, store db.Store, r io.Reader, email string) (string, []string, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return "", nil, fmt.Errorf("decode export: %w", err)
	}
	values := make(map[string][]byte, len(raw))
	for k, v := range raw {
		if !importableKeys[k] {
			slog.Debug("skipping unknown key", "key", k)
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			v = json.RawMessage(s)
		}
		if !json.Valid(v) {
			return "", nil, fmt.Errorf("key %s is not valid JSON", k)
		}
		values[k] = v
	}

	var user services.User
	if b, ok := values[services.KeyUser]; ok {
		if err := json.Unmarshal(b, &user); err != nil {
			return "", nil, fmt.Errorf("decode user: %w", err)
		}
	}
	if email = strings.TrimSpace(email); email == "" {
		email = user.Email
	}
	if email == "" {
		return "", nil, fmt.Errorf("no profile email: pass --email or include a user record")
	}
	uid := services.UserIDForEmail(email)
	if _, ok := values[services.KeyUser]; ok {
		user.ID, user.Email = uid, email
		b, err := json.Marshal(user)
		if err != nil {
			return "", nil, err
		}
		values[services.KeyUser] = b
	}
	if err := checkImport(values); err != nil {
		return "", nil, err
	}

	if err := db.Namespace(store, db.ProfilePrefix(uid)).SetMany(ctx, values); err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return uid, keys, nil
}

// checkImport validates the dump and replaces any exported footprint with the
// one calculated from the exported survey.
func checkImport(values map[string][]byte) error {
	if b, ok := values[services.KeySurveyData]; ok {
		var s services.Survey
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode survey: %w", err)
		}
		fp, err := services.NewCalculator(services.DefaultEmissionModel()).Calculate(s)
		if err != nil {
			return err
		}
		if values[services.KeyFootprint], err = json.Marshal(fp); err != nil {
			return err
		}
	} else if _, ok := values[services.KeyFootprint]; ok {
		return services.NewInvalidError("footprint cannot be imported without surveyData")
	}

	if b, ok := values[services.KeyInsights]; ok {
		var insights []services.Insight
		if err := json.Unmarshal(b, &insights); err != nil {
			return fmt.Errorf("decode insights: %w", err)
		}
		if err := services.ValidateInsights(insights); err != nil {
			return err
		}
	}
	for _, key := range []string{services.KeyLikedInsights, services.KeyDislikedInsights, services.KeySavedInsights} {
		if b, ok := values[key]; ok {
			var flags map[string]bool
			if err := json.Unmarshal(b, &flags); err != nil {
				return fmt.Errorf("decode %s: %w", key, err)
			}
		}
	}
	return nil
}
