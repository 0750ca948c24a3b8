package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"

	"pbrify/internal/settings"
)

func newManageSettingsForm(cfg settings.Settings, width int) *manageForm {
	f := &manageForm{
		Title: "Settings",
		Fields: []manageFormField{
			{Key: settings.KeyModsDir, Label: "Mods Directory", Help: "Folder with one sub-folder per mod", Kind: manageFieldString, Required: true, Value: cfg.ModsDir},
			{Key: settings.KeyOutputDir, Label: "Output Directory", Help: "Receives one '<mod> PBR' folder per mod; must differ from the mods directory", Kind: manageFieldString, Required: true, Value: cfg.OutputDir},
			{Key: settings.KeyCreatePBRPath, Label: "create_pbr.exe", Help: "Full path to " + settings.ExecutableName, Kind: manageFieldString, Required: true, Value: cfg.CreatePBRPath},
			{Key: settings.KeyCheckpoint, Label: "Checkpoint", Help: "Segformer checkpoint", Kind: manageFieldSelect, Value: defaultIfEmpty(cfg.Checkpoint, settings.DefaultCheckpoint), Options: settings.Checkpoints},
			{Key: settings.KeyTextureFormat, Label: "Texture Format", Help: "Format of the generated maps", Kind: manageFieldSelect, Value: defaultIfEmpty(cfg.TextureFormat, settings.DefaultTextureFormat), Options: settings.TextureFormats},
			{Key: settings.KeyMaxTileSize, Label: "Max Tile Size", Help: "Larger tiles need more GPU memory", Kind: manageFieldSelect, Value: defaultIfEmpty(cfg.MaxTileSize, settings.DefaultMaxTileSize), Options: settings.MaxTileSizes},
		},
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024
	input.Width = clampInt(width-8, 20, 120)
	f.Input = input
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func resizeFormInput(f *manageForm, width int) *manageForm {
	if f == nil {
		return nil
	}
	f.Input.Width = clampInt(width-8, 20, 120)
	return f
}

func (f *manageForm) currentField() manageFormField {
	if len(f.Fields) == 0 {
		return manageFormField{}
	}
	if f.Index < 0 {
		f.Index = 0
	}
	if f.Index >= len(f.Fields) {
		f.Index = len(f.Fields) - 1
	}
	return f.Fields[f.Index]
}

func (f *manageForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *manageForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *manageForm) nextSelectOption() {
	f.stepSelectOption(1)
}

func (f *manageForm) prevSelectOption() {
	f.stepSelectOption(-1)
}

func (f *manageForm) stepSelectOption(delta int) {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	curr := f.Fields[f.Index]
	if curr.Kind != manageFieldSelect || len(curr.Options) == 0 {
		return
	}
	current := strings.TrimSpace(curr.Value)
	pos := 0
	for i, opt := range curr.Options {
		if opt == current {
			pos = i
			break
		}
	}
	n := len(curr.Options)
	pos = ((pos+delta)%n + n) % n
	curr.Value = curr.Options[pos]
	f.Fields[f.Index] = curr
	f.loadFieldIntoInput()
}

// toSettings checks every field and the combination of them. All problems
// are returned together.
func (f *manageForm) toSettings() (settings.Settings, error) {
	if f == nil {
		return settings.Settings{}, errors.New("internal form error")
	}
	cfg := settings.Defaults()
	var errs []error
	for _, field := range f.Fields {
		v := strings.TrimSpace(field.Value)
		if field.Required && v == "" {
			errs = append(errs, fmt.Errorf("%s is required", strings.ToLower(field.Label)))
			continue
		}
		if err := cfg.Set(field.Key, v); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return settings.Settings{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return settings.Settings{}, err
	}
	return cfg, nil
}
