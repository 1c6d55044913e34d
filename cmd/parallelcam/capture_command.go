package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"parallelcamera/internal/capture"
	"parallelcamera/internal/gateway"
	"parallelcamera/internal/mirror"
	"parallelcamera/internal/store"
)

const cliSessionID = "cli"

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	var (
		modeFlag    string
		imagePath   string
		lat, lon    float64
		characterID int64
		prompt      string
		outputPath  string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Run a full capture against the configured gateway",
		Long: "Describes the photo, optionally adds a creative element, generates the " +
			"parallel-world image and stores the result in local history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := store.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if mode == store.ModeMeta && strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("--prompt is required in meta mode")
			}
			if mode != store.ModeMeta && prompt != "" {
				return fmt.Errorf("--prompt is only used in meta mode")
			}
			image, err := readDataURI(imagePath, "image/jpeg")
			if err != nil {
				return err
			}
			input := capture.Capture{Mode: mode, Image: image, CharacterID: characterID}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				input.Location = &store.Location{Latitude: lat, Longitude: lon}
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			caps, err := ctx.gateway()
			if err != nil {
				return err
			}

			return ctx.withStore(func(st *store.Store) error {
				errOut := cmd.ErrOrStderr()
				opts := []capture.Option{
					capture.WithLogger(ctx.logger()),
					capture.WithProgress(func(s capture.Snapshot) {
						if s.State == capture.StateProcessing && s.Step > 0 {
							fmt.Fprintf(errOut, "[%d/%d] %s\n", s.Step, s.TotalSteps, s.StepName)
						}
					}),
				}
				if cfg.Capture.MirrorResults {
					mir, err := mirror.Open(cmd.Context(), cfg, ctx.logger())
					if err != nil {
						fmt.Fprintf(errOut, "History mirror unavailable: %v\n", err)
					} else {
						defer mir.Close()
						opts = append(opts, capture.WithMirror(mir))
					}
				}

				result, err := runCapture(cmd, capture.New(caps, st, opts...), input, prompt)
				if err != nil {
					return err
				}
				return reportCapture(cmd, result, outputPath, asJSON)
			})
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", string(store.ModeRealistic), "Capture mode: realistic, creative or meta")
	cmd.Flags().StringVar(&imagePath, "image", "", "Photo to reinterpret")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude the photo was taken at")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude the photo was taken at")
	cmd.Flags().Int64Var(&characterID, "character", 0, "Character id to place into the scene")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Instruction for meta mode")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the generated image to this file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the stored record as JSON")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func runCapture(cmd *cobra.Command, orch *capture.Orchestrator, input capture.Capture, prompt string) (*capture.Result, error) {
	session := orch.Session(cliSessionID)
	if err := session.Start(); err != nil {
		return nil, err
	}
	result, err := session.Capture(cmd.Context(), input)
	if err != nil {
		return nil, err
	}
	if input.Mode == store.ModeMeta {
		return session.ConfirmPrompt(cmd.Context(), prompt)
	}
	return result, nil
}

func reportCapture(cmd *cobra.Command, result *capture.Result, outputPath string, asJSON bool) error {
	out := cmd.OutOrStdout()
	if outputPath != "" {
		if err := writeDataURI(outputPath, result.Record.GeneratedImage); err != nil {
			return err
		}
	}
	if asJSON {
		return writeJSON(cmd, result)
	}

	rec := result.Record
	fmt.Fprintf(out, "Mode:        %s\n", modeLabel(rec.Mode))
	fmt.Fprintf(out, "Description: %s\n", rec.Description)
	if rec.CreativeElement != "" {
		fmt.Fprintf(out, "Creative:    %s\n", rec.CreativeElement)
	}
	if rec.CharacterName != "" {
		fmt.Fprintf(out, "Character:   %s\n", rec.CharacterName)
	}
	if result.Saved {
		fmt.Fprintf(out, "Saved as history record %d\n", rec.ID)
	} else {
		fmt.Fprintf(out, "Not saved to history: %s\n", result.SaveError)
	}
	if outputPath != "" {
		fmt.Fprintf(out, "Image written to %s\n", outputPath)
	}
	return nil
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var audioPath, mimeType string
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe a voice prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := readDataURI(audioPath, "audio/webm")
			if err != nil {
				return err
			}
			caps, err := ctx.gateway()
			if err != nil {
				return err
			}
			text, err := caps.Transcribe(cmd.Context(), gateway.TranscribeRequest{Audio: audio, MimeType: mimeType})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio file to transcribe")
	cmd.Flags().StringVar(&mimeType, "mime", "", "Override the audio MIME type")
	_ = cmd.MarkFlagRequired("audio")
	return cmd
}
