package main

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/0x4D31/berttrain/internal/bert"
	"github.com/0x4D31/berttrain/internal/flags"
)

const noneText = "<none>"

var (
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	valStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

type optionView struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Value   *string  `json:"value"`
	Default *string  `json:"default"`
	Source  string   `json:"source"`
	Choices []string `json:"choices,omitempty"`
	Usage   string   `json:"usage"`
}

func optionViews(opts []flags.Option) []optionView {
	out := make([]optionView, 0, len(opts))
	for _, o := range opts {
		v := optionView{
			Name:    o.Name,
			Type:    o.Kind.String(),
			Source:  o.Source.String(),
			Choices: o.Choices,
			Usage:   o.Usage,
		}
		if o.Present {
			val := o.Value
			v.Value = &val
		}
		if o.HasDefault {
			def := o.Default
			v.Default = &def
		}
		out = append(out, v)
	}
	return out
}

func renderOptions(opts []flags.Option) string {
	rows := make([][]string, 0, len(opts))
	for _, o := range opts {
		val := noneText
		if o.Present {
			val = o.Value
			if val == "" {
				val = `""`
			}
		}
		typ := o.Kind.String()
		if o.Kind == flags.KindEnum {
			typ = "enum{" + strings.Join(o.Choices, ",") + "}"
		}
		rows = append(rows, []string{o.Name, typ, val, o.Source.String()})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("NAME", "TYPE", "VALUE", "SOURCE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 0:
				return keyStyle.Padding(0, 1)
			case col == 2 && rows[row][3] != flags.SourceDefault.String():
				return valStyle.Padding(0, 1)
			case col == 3:
				return dimStyle.Padding(0, 1)
			}
			return base
		})
	return t.String()
}

type settingsView struct {
	UseFloat16 bool   `json:"use_float16"`
	LossScale  string `json:"loss_scale"`
	DType      string `json:"dtype"`
	Strategy   string `json:"strategy_type"`
	ModelDir   string `json:"model_dir"`
}

func newSettingsView(cfg bert.Config) settingsView {
	return settingsView{
		UseFloat16: cfg.UseFloat16(),
		LossScale:  cfg.LossScale.String(),
		DType:      cfg.DType.String(),
		Strategy:   string(cfg.StrategyType),
		ModelDir:   cfg.ModelDirOrDefault(),
	}
}

func renderSettings(s settingsView) string {
	var b strings.Builder
	line := func(k, v string) {
		b.WriteString(keyStyle.Render(k+":") + " " + valStyle.Render(v) + "\n")
	}
	line("use_float16", strconv.FormatBool(s.UseFloat16))
	line("loss_scale", s.LossScale)
	line("dtype", s.DType)
	line("strategy_type", s.Strategy)
	line("model_dir", s.ModelDir)
	return strings.TrimSuffix(b.String(), "\n")
}
