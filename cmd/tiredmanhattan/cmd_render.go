package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/tiredmanhattan/internal/caption"
	"github.com/user/tiredmanhattan/internal/config"
	"github.com/user/tiredmanhattan/internal/moderation"
	"github.com/user/tiredmanhattan/internal/render"
)

func init() {
	rootCmd.AddCommand(renderCmd, cleanCmd)
	renderCmd.Flags().StringP("out", "o", ".", "output directory, or a file path ending in .png")
}

func newCompositor(cfg *config.Config) (*render.Compositor, error) {
	assets, err := render.LoadAssets(cfg.Assets.Background, cfg.Assets.Font)
	if err != nil {
		return nil, err
	}
	return render.NewCompositor(render.DefaultSpec(), assets), nil
}

func loadWordList(cfg *config.Config) (*moderation.WordList, error) {
	if cfg.Assets.WordList == "" {
		return moderation.NewWordList(), nil
	}
	return moderation.LoadWordList(cfg.Assets.WordList)
}

// outputPath returns out itself when it names a .png file, otherwise the
// slug of text inside the directory out.
func outputPath(out, text string) string {
	info, err := os.Stat(out)
	isDir := err == nil && info.IsDir()
	if !isDir && strings.EqualFold(filepath.Ext(out), ".png") {
		return out
	}
	name := caption.Slugify(text)
	if name == "" {
		name = "tired"
	}
	return filepath.Join(out, name+".png")
}

var renderCmd = &cobra.Command{
	Use:   "render <text>",
	Short: "Render the reply image for text to a PNG file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		compositor, err := newCompositor(cfg)
		if err != nil {
			return err
		}
		png, err := compositor.Render(caption.Clean(args[0]))
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}

		out, _ := cmd.Flags().GetString("out")
		path := outputPath(out, args[0])
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(path, png, 0644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean <text>",
	Short: "Print the caption text would produce",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), caption.Clean(args[0]))
		return nil
	},
}
