package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type baseModel struct {
	Self        string `json:"self"`
	DisplayName string `json:"displayName"`
	Locale      string `json:"locale"`
}

func newModelsCmd(app *appState) *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the speech-to-text base models and save the full listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelsFn := app.modelsFn
			if modelsFn == nil {
				modelsFn = app.fetchBaseModels
			}

			raw, err := modelsFn(cmd.Context())
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "    "); err != nil {
				return fmt.Errorf("decode model listing: %w", err)
			}
			name := fmt.Sprintf("speech_to_text_models_%s.json", regionOf(app.cfg.Speech.Endpoint))
			path, err := app.writer().WriteRaw(name, pretty.Bytes())
			if err != nil {
				return err
			}

			var listing struct {
				Values []baseModel `json:"values"`
			}
			if err := json.Unmarshal(raw, &listing); err != nil {
				return fmt.Errorf("decode model listing: %w", err)
			}
			shown := 0
			for _, m := range listing.Values {
				if locale != "" && !strings.EqualFold(m.Locale, locale) {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Locale, m.DisplayName, m.Self)
				shown++
			}
			app.log().Info("model listing saved", zap.String("path", path), zap.Int("models", len(listing.Values)), zap.Int("shown", shown))
			return nil
		},
	}

	cmd.Flags().StringVar(&locale, "locale", "", "Only print models for this locale; the saved file is unfiltered")
	return cmd
}

func (a *appState) fetchBaseModels(ctx context.Context) (json.RawMessage, error) {
	if err := a.cfg.RequireSpeech(); err != nil {
		return nil, err
	}
	return a.speechClient().BaseModels(ctx)
}

// regionOf returns the first host label of a regional endpoint such as
// https://australiaeast.api.cognitive.microsoft.com.
func regionOf(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	label, _, _ := strings.Cut(u.Hostname(), ".")
	return label
}
