package dist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/panda3d/panda3d-sub012/hosts"
	"github.com/panda3d/panda3d-sub012/progress"
	distProgress "github.com/panda3d/panda3d-sub012/progress/dist"
)

// report every 1 MiB
const progressInterval = 1 << 20

// download copies the archive of pd into dst and returns its digest. The
// transfer is capped by max_download_size.
func (d *Dist) download(ctx context.Context, rt http.RoundTripper, pd *hosts.Descriptor, dst *os.File, meter *progress.Meter) (hosts.Digest, error) {
	defer dst.Close() //nolint:errcheck

	maxBytes, err := d.local.Conf().MaxDownloadBytes()
	if err != nil {
		return "", err
	}
	body, size, err := d.fetch.open(ctx, rt, pd.Source)
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck

	if size < 0 {
		size = pd.Size
	}
	if size > maxBytes {
		return "", fmt.Errorf("%s is %d bytes, limit %d: %w", pd.Source, size, maxBytes, hosts.ErrTooLarge)
	}
	name := pd.Ref.String()
	meter.SetTotal(size)
	d.tracker.OnEvent(distProgress.Event{Phase: distProgress.PhaseDownload, Package: name, BytesTotal: size})

	h := sha256.New()
	reader := io.TeeReader(io.LimitReader(body, maxBytes+1), h)
	pw := &progressWriter{w: dst, total: size, pkg: name, meter: meter, tracker: d.tracker}
	written, err := io.Copy(pw, reader)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", pd.Source, err)
	}
	if written > maxBytes {
		return "", fmt.Errorf("download %s: exceeded %d bytes: %w", pd.Source, maxBytes, hosts.ErrTooLarge)
	}
	pw.report()
	if err := dst.Sync(); err != nil {
		return "", fmt.Errorf("sync archive: %w", err)
	}
	return hosts.NewDigest(hex.EncodeToString(h.Sum(nil))), nil
}

// progressWriter feeds the package meter on every write and emits tracker
// events every progressInterval bytes.
type progressWriter struct {
	w          io.Writer
	written    int64
	total      int64
	lastReport int64
	pkg        string
	meter      *progress.Meter
	tracker    progress.Tracker
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	pw.meter.Add(int64(n))
	if pw.written-pw.lastReport >= progressInterval {
		pw.report()
	}
	return n, err
}

func (pw *progressWriter) report() {
	pw.lastReport = pw.written
	pw.tracker.OnEvent(distProgress.Event{
		Phase:      distProgress.PhaseDownload,
		Package:    pw.pkg,
		BytesTotal: pw.total,
		BytesDone:  pw.written,
	})
}
