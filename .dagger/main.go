// Thinkgate CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/thinkgate/internal/dagger"
)

// Thinkgate is the main module for the thinkgate CI/CD pipeline
type Thinkgate struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Thinkgate CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Thinkgate {
	return &Thinkgate{
		Source: source,
	}
}

// goContainer returns a Go container with the project source mounted and the
// module and build caches attached. Thinkgate has no cgo dependencies.
func (t *Thinkgate) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", t.Source)
}

// Test runs the thinkgate unit tests via "go test"
func (t *Thinkgate) Test(ctx context.Context) (string, error) {
	return t.goContainer().
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// TestRace runs the gateway and splitter tests with the race detector, which
// exercises concurrent pipelines against one gateway.
func (t *Thinkgate) TestRace(ctx context.Context) (string, error) {
	return t.goContainer().
		WithEnvVariable("CGO_ENABLED", "1").
		WithExec([]string{"apk", "add", "--no-cache", "gcc", "musl-dev"}).
		WithExec([]string{"go", "test", "-race", "./gateway/...", "./pkg/splitter/..."}).
		Stdout(ctx)
}
