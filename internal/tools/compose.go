package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Compose probes docker compose for a tool service. Tool runners prefer
// executing inside a running compose service over a local binary.
type Compose struct {
	Cmd Commander
	// File is the compose file gating the probe, default docker-compose.yml
	// in Dir.
	File string
	// Dir is the directory compose commands run in.
	Dir string
}

// NewCompose returns a prober for the given project directory.
func NewCompose(cmd Commander, dir string) *Compose {
	return &Compose{Cmd: cmd, File: "docker-compose.yml", Dir: dir}
}

// Available reports whether a compose file exists and docker compose works.
func (c *Compose) Available(ctx context.Context) bool {
	path := c.File
	if c.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(c.Dir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	_, err := c.Cmd.Run(ctx, c.Dir, "docker", "compose", "version")
	return err == nil
}

// ServiceDefined reports whether the compose config declares the service.
func (c *Compose) ServiceDefined(ctx context.Context, service string) bool {
	res, err := c.Cmd.Run(ctx, c.Dir, "docker", "compose", "config", "--services")
	if err != nil {
		return false
	}
	return containsLine(res.Stdout, service)
}

// ServiceRunning reports whether the service is currently up.
func (c *Compose) ServiceRunning(ctx context.Context, service string) bool {
	res, err := c.Cmd.Run(ctx, c.Dir, "docker", "compose", "ps", "--services", "--filter", "status=running")
	if err != nil {
		return false
	}
	return containsLine(res.Stdout, service)
}

func containsLine(output, want string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
