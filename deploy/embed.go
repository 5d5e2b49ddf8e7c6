// Package deploy carries the systemd unit the agent is installed with.
package deploy

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed systemd/*.tmpl
var unitFiles embed.FS

const unitTemplate = "systemd/open-accountability.service.tmpl"

// UnitParams fills in the unit template.
type UnitParams struct {
	User       string
	Display    string
	WorkingDir string
	Binary     string
	ConfigPath string
}

func (p UnitParams) withDefaults() UnitParams {
	if p.User == "" {
		p.User = "root"
	}
	if p.Display == "" {
		p.Display = ":0"
	}
	if p.WorkingDir == "" {
		p.WorkingDir = "/var/lib/open-accountability"
	}
	if p.Binary == "" {
		p.Binary = "/usr/local/bin/open-accountability"
	}
	if p.ConfigPath == "" {
		p.ConfigPath = "/etc/open-accountability/.open-accountability.yaml"
	}
	return p
}

// RenderUnit returns the unit file for p. The result always carries the
// restart policy the tamper check requires.
func RenderUnit(p UnitParams) ([]byte, error) {
	tmpl, err := template.ParseFS(unitFiles, unitTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded unit: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p.withDefaults()); err != nil {
		return nil, fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteUnit renders the unit to destPath.
func WriteUnit(destPath string, p UnitParams) error {
	content, err := RenderUnit(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}
	return os.WriteFile(destPath, content, 0644)
}
