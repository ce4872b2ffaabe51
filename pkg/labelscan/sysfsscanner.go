package labelscan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/go-lvm/lvmcache/pkg/devicemanager"
	"github.com/go-lvm/lvmcache/pkg/lvmcache"
)

const labelMagic = "# lvmcache-pv-label"

// maxReadBytes bounds how much of a device is read looking for a label,
// the same defensive cap the teacher applies to lsof/process output.
const maxReadBytes = 64 * 1024

// SysfsScanner implements lvmcache.Scanner, grounded on the teacher's
// pkg/nvme/sysfs.go glob-based sysfs walk: instead of resolving NVMe
// controller paths, it reads each candidate device looking for a PV
// label and feeds the result through Cache.Update.
type SysfsScanner struct {
	Labeller lvmcache.Labeller
	Format   lvmcache.Format

	// Backoff governs retrying a transient (non-ENOENT) read failure,
	// mirroring the reconnect backoff the teacher's pkg/rds connection
	// manager applies one layer further out (SPEC_FULL.md DOMAIN STACK).
	Backoff func() backoff.BackOff
}

// NewSysfsScanner builds a scanner for format/labeller with the
// teacher's default exponential-backoff shape.
func NewSysfsScanner(labeller lvmcache.Labeller, format lvmcache.Format) *SysfsScanner {
	return &SysfsScanner{
		Labeller: labeller,
		Format:   format,
		Backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
}

// ScanDevices implements lvmcache.Scanner: it reads every device looking
// for a label, and for any that carry one calls Cache.Update (spec
// §4.3).
func (s *SysfsScanner) ScanDevices(ctx context.Context, c *lvmcache.Cache, devices []lvmcache.Device) error {
	for _, dev := range devices {
		h, ok := dev.(devicemanager.Handle)
		if !ok {
			klog.V(4).Infof("labelscan: skipping non-Handle device %v", dev)
			continue
		}

		data, err := s.readWithRetry(ctx, h.Path)
		if err != nil {
			klog.V(4).Infof("labelscan: no label on %s: %v", h.Path, err)
			continue
		}

		rec, ok := parseLabel(data)
		if !ok {
			continue
		}

		var summary *lvmcache.VGSummary
		if rec.VG != nil {
			vgSummary := rec.VG.toSummary()
			summary = &vgSummary
		}

		if err := c.Update(s.Labeller, dev, rec.PVID, s.Format, summary); err != nil {
			return fmt.Errorf("labelscan: update for %s: %w", h.Path, err)
		}
	}
	return nil
}

func (s *SysfsScanner) readWithRetry(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer f.Close()

		buf := make([]byte, maxReadBytes)
		n, readErr := f.Read(buf)
		if readErr != nil && n == 0 {
			return readErr
		}
		data = buf[:n]
		return nil
	}

	bo := backoff.WithContext(s.Backoff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return data, nil
}

func parseLabel(data []byte) (*onDiskRecord, bool) {
	if !bytes.HasPrefix(data, []byte(labelMagic)) {
		return nil, false
	}
	var rec onDiskRecord
	if err := yaml.Unmarshal(data[len(labelMagic):], &rec); err != nil {
		klog.V(4).Infof("labelscan: malformed label: %v", err)
		return nil, false
	}
	if rec.PVID == "" {
		return nil, false
	}
	return &rec, true
}
