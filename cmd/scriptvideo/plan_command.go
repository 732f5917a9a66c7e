package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/scriptvideo/internal/engine"
	"github.com/ivlev/scriptvideo/internal/plan"
	"github.com/ivlev/scriptvideo/internal/service"
	"github.com/ivlev/scriptvideo/internal/source"
)

var nowFunc = time.Now

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var (
		inputs inputFlags
		encode encodeFlags
		write  string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show how images and script lines pair into scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}
			settings, err := encode.apply(cmd, cfg.Encode)
			if err != nil {
				return err
			}
			req, err := inputs.folderRequest(settings, "")
			if err != nil {
				return err
			}
			p, err := service.PlanFromFolder(req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(p.Scenes))
			for _, e := range p.Scenes {
				rows = append(rows, []string{
					strconv.Itoa(e.Index + 1),
					sceneNumber(e),
					imageCell(e),
					effectList(e.Effects),
					e.Text,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Line", "Image", "Effects", "Text"}, rows, []columnAlignment{alignRight, alignRight}))
			fmt.Fprintf(out, "[*] %d scenes, %d renderable, video length %s\n",
				len(p.Scenes), len(p.Renderable()), engine.FormatTimestamp(p.Duration()))

			if write != "" {
				if err := plan.WriteFile(p, write); err != nil {
					return err
				}
				fmt.Fprintf(out, "[+++] Plan saved: %s\n", write)
			}
			return nil
		},
	}

	inputs.register(cmd)
	encode.register(cmd)
	cmd.Flags().StringVarP(&write, "write", "w", "", "Save the plan as YAML for render --plan")
	return cmd
}

func sceneNumber(e plan.Entry) string {
	if e.SceneNumber == 0 {
		return "-"
	}
	return strconv.Itoa(e.SceneNumber)
}

func imageCell(e plan.Entry) string {
	if e.ImagePath == "" {
		if e.Renderable() {
			return "(black)"
		}
		return "(none)"
	}
	name := filepath.Base(e.ImagePath)
	w, h, err := source.Dimensions(e.ImagePath)
	if err != nil {
		return name + " (?)"
	}
	return fmt.Sprintf("%s (%dx%d)", name, w, h)
}
