package oci

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/installer"
	"github.com/panda3d/panda3d-sub012/progress"
	ociProgress "github.com/panda3d/panda3d-sub012/progress/oci"
)

const (
	whiteoutPrefix = ".wh."
	whiteoutOpaque = ".wh..wh..opq"
)

var gzipMagic = []byte{0x1f, 0x8b}

// layerResult is the output of extracting one layer.
type layerResult struct {
	dir       string
	digest    hosts.Digest
	whiteouts []string // paths removed by this layer
	opaque    []string // directories whose lower content is hidden
}

// FetchAndInstall pulls the pinned manifest, extracts every layer
// concurrently, merges them in order and commits the result.
func (o *OCI) FetchAndInstall(ctx context.Context, desc installer.Descriptor, rt http.RoundTripper) error {
	logger := log.WithFunc("oci.FetchAndInstall")
	pd, err := hosts.AsDescriptor(desc)
	if err != nil {
		return err
	}
	pkg := pd.Ref.String()

	ref, err := name.NewDigest(pd.Source, o.nameOpts...)
	if err != nil {
		return fmt.Errorf("invalid source %q: %w", pd.Source, err)
	}
	img, err := remote.Image(ref, o.remoteOpts(ctx, rt)...)
	if err != nil {
		return fmt.Errorf("fetch image %s: %w", ref, err)
	}
	layers, err := img.Layers()
	if err != nil {
		return fmt.Errorf("get layers: %w", err)
	}
	if len(layers) == 0 {
		return fmt.Errorf("image %s has no layers", ref)
	}

	meter := o.local.Track(pd)
	defer o.local.Untrack(pd)
	meter.SetTotal(pd.Size)
	o.tracker.OnEvent(ociProgress.Event{Phase: ociProgress.PhaseResolve, Package: pkg, Index: -1, Total: len(layers), BytesTotal: pd.Size})

	workDir, err := o.local.StagingDir("pull-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir) //nolint:errcheck

	results := make([]layerResult, len(layers))
	g, gctx := errgroup.WithContext(ctx)
	limit := o.local.Conf().PoolSize
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g.SetLimit(limit)
	for i, layer := range layers {
		i, layer := i, layer
		g.Go(func() error {
			return o.extractLayer(gctx, pkg, i, len(layers), layer, workDir, meter, &results[i])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("extract layers: %w", err)
	}

	content := filepath.Join(workDir, "content")
	if err := os.MkdirAll(content, 0o750); err != nil {
		return err
	}
	for i := range results {
		if err := mergeLayer(content, &results[i]); err != nil {
			return fmt.Errorf("merge layer %d: %w", i, err)
		}
	}

	o.tracker.OnEvent(ociProgress.Event{Phase: ociProgress.PhaseCommit, Package: pkg, Index: -1, Total: len(layers)})
	if err := o.local.Commit(ctx, pd, pd.Digest, content); err != nil {
		return fmt.Errorf("commit %s: %w", pkg, err)
	}
	o.tracker.OnEvent(ociProgress.Event{Phase: ociProgress.PhaseDone, Package: pkg, Index: -1, Total: len(layers)})
	logger.Infof(ctx, "pulled %s (%s, %d layers)", pkg, pd.Digest.Short(), len(layers))
	return nil
}

// extractLayer unpacks one compressed layer into its own directory,
// recording whiteouts instead of applying them.
func (o *OCI) extractLayer(ctx context.Context, pkg string, idx, total int, layer v1.Layer, workDir string, meter *progress.Meter, result *layerResult) error {
	digest, err := layer.Digest()
	if err != nil {
		return fmt.Errorf("layer %d digest: %w", idx, err)
	}
	result.digest = hosts.NewDigest(digest.Hex)
	result.dir = filepath.Join(workDir, fmt.Sprintf("layer-%d", idx))
	if err := os.MkdirAll(result.dir, 0o750); err != nil {
		return err
	}

	rc, err := layer.Compressed()
	if err != nil {
		return fmt.Errorf("open layer %d: %w", idx, err)
	}
	defer rc.Close() //nolint:errcheck

	counted := &countingReader{r: rc, onRead: func(n int) {
		meter.Add(int64(n))
		o.tracker.OnEvent(ociProgress.Event{Phase: ociProgress.PhaseBytes, Package: pkg, Index: idx, Total: total, BytesDone: int64(n)})
	}}
	stream, err := decompress(counted)
	if err != nil {
		return fmt.Errorf("layer %d: %w", idx, err)
	}

	if err := hosts.ExtractTar(ctx, stream, result.dir, func(hdr *tar.Header, _ string) (bool, error) {
		dir, base := filepath.Split(filepath.Clean(hdr.Name))
		if !strings.HasPrefix(base, whiteoutPrefix) {
			return false, nil
		}
		if base == whiteoutOpaque {
			result.opaque = append(result.opaque, dir)
		} else {
			result.whiteouts = append(result.whiteouts, filepath.Join(dir, strings.TrimPrefix(base, whiteoutPrefix)))
		}
		return true, nil
	}); err != nil {
		return fmt.Errorf("layer %d: %w", idx, err)
	}
	// Drain trailing padding so the full blob is counted.
	_, _ = io.Copy(io.Discard, counted)

	o.tracker.OnEvent(ociProgress.Event{Phase: ociProgress.PhaseLayer, Package: pkg, Index: idx, Total: total, Digest: result.digest.Short()})
	return nil
}

// decompress accepts gzip or plain tar layers.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("peek layer: %w", err)
	}
	if bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		return gz, nil
	}
	return br, nil
}

type countingReader struct {
	r      io.Reader
	onRead func(int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.onRead(n)
	}
	return n, err
}

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}
