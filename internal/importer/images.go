// File: internal/importer/images.go
// Brief: Image stream tag reconciliation against desired source URIs.

package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/distribution/reference"
	"github.com/go-logr/logr"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/kube"
)

// ImageImporter converges image stream tags onto their declared source
// images: import when absent, retag when pointing elsewhere, no-op when
// already current.
type ImageImporter struct {
	Target kube.Ops
	Envs   []string
	Log    logr.Logger

	reg *registry
}

func NewImageImporter(target kube.Ops, envs []string, log logr.Logger) *ImageImporter {
	return &ImageImporter{Target: target, Envs: envs, Log: log, reg: newRegistry()}
}

// Import reconciles every image the set declares. Each istag is handled at
// most once per run even when several sets declare it.
func (imp *ImageImporter) Import(ctx context.Context, images []config.Image) error {
	for _, image := range images {
		if !envSelected(image.Envs, imp.Envs) {
			imp.Log.V(1).Info("skipping image outside active envs", "istag", image.ISTag, "envs", image.Envs)
			continue
		}
		if !imp.reg.claimImage(image.ISTag) {
			continue
		}
		if err := imp.reconcile(ctx, image); err != nil {
			return &ImageError{ISTag: image.ISTag, Err: err}
		}
	}
	return nil
}

func (imp *ImageImporter) reconcile(ctx context.Context, image config.Image) error {
	stream, tag, err := SplitISTag(image.ISTag)
	if err != nil {
		return err
	}
	if _, err := reference.ParseNormalizedNamed(image.From); err != nil {
		return fmt.Errorf("source image %q: %w", image.From, err)
	}

	current, err := imp.Target.GetImageTag(ctx, stream, tag)
	if err != nil {
		return err
	}
	switch current {
	case image.From:
		imp.Log.V(1).Info("image tag up to date", "istag", image.ISTag)
		return nil
	case "":
		imp.Log.Info("importing image", "istag", image.ISTag, "from", image.From)
		return imp.Target.ImportImage(ctx, stream, tag, image.From, image.ImportScheduled())
	default:
		imp.Log.Info("retagging image", "istag", image.ISTag, "from", current, "to", image.From)
		return imp.Target.TagImage(ctx, stream, tag, image.From, image.ImportScheduled())
	}
}

// SplitISTag splits "stream:tag" into its parts. A missing tag defaults to
// "latest" upstream of this call, so two parts are required here.
func SplitISTag(istag string) (stream, tag string, err error) {
	stream, tag, ok := strings.Cut(istag, ":")
	if !ok || stream == "" || tag == "" {
		return "", "", fmt.Errorf("istag %q is not of the form stream:tag", istag)
	}
	return stream, tag, nil
}
