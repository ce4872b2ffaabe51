// Command lvmcache-demo is a thin manual-exercise harness wiring a
// SysEnumerator, a SysfsScanner and a Cache together (SPEC_FULL.md
// AMBIENT STACK "Configuration"). It is not the command-line surface
// spec.md scopes out; filter evaluation and argument parsing for a real
// volume-manager CLI are out of scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"github.com/go-lvm/lvmcache/pkg/devicemanager"
	"github.com/go-lvm/lvmcache/pkg/labelscan"
	"github.com/go-lvm/lvmcache/pkg/lvmcache"
	"github.com/go-lvm/lvmcache/pkg/observability"
	"github.com/go-lvm/lvmcache/pkg/vgcodec"
	"github.com/go-lvm/lvmcache/pkg/vgformat"
)

var (
	localHost    = flag.String("local-host", "", "this host's identity for VG primary-selection (defaults to os.Hostname)")
	clustered    = flag.Bool("clustered", false, "enable the saved-VG shadow store for a clustered caller")
	sysRoot      = flag.String("sys-root", devicemanager.DefaultSysRoot, "sysfs root to enumerate devices under")
	formatName   = flag.String("format-name", "lvm2", "label format name fed to the scanner")
	formatKind   = flag.String("format-kind", "disk", "metadata format: \"disk\" (metadata lives in each PV's own areas) or \"file\" (independent metadata location)")
	metadataDir  = flag.String("metadata-dir", "", "directory backing the independent metadata location (format-kind=file only; defaults under os.TempDir)")
	scanInterval = flag.Duration("scan-interval", 0, "if non-zero, re-scan on this interval instead of scanning once")
	metricsAddr  = flag.String("metrics-address", ":9810", "address for the Prometheus metrics endpoint (empty to disable)")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	host := *localHost
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			klog.Fatalf("lvmcache-demo: resolve hostname: %v", err)
		}
		host = h
	}

	cache := lvmcache.New(lvmcache.Config{LocalHost: host, Clustered: *clustered})

	var metrics *observability.Metrics
	if *metricsAddr != "" {
		metrics = observability.New()
		cache.SetMetrics(metrics)
	}

	enumerator := devicemanager.NewSysEnumerator()
	enumerator.Root = *sysRoot

	var format vgformat.Format
	switch *formatKind {
	case "file":
		dir := *metadataDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "lvmcache-demo-metadata")
		}
		format = vgformat.NewFileFormat(*formatName, dir)
	default:
		format = vgformat.NewDiskFormat(*formatName)
	}
	if err := format.CreateInstance(context.Background()); err != nil {
		klog.Fatalf("lvmcache-demo: create format instance: %v", err)
	}

	scanner := labelscan.NewSysfsScanner(&labelscan.DiskLabeller{FormatName: *formatName}, format)
	breakerScanner := labelscan.NewBreakerScanner(scanner)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			klog.Infof("lvmcache-demo: metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				klog.Errorf("lvmcache-demo: metrics server failed: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigCh
		klog.Infof("lvmcache-demo: received signal %s, shutting down", sig)
		cancel()
	}()

	runOnce := func() {
		devices, err := enumerator.Enumerate(ctx)
		if err != nil {
			klog.Errorf("lvmcache-demo: enumerate devices: %v", err)
			return
		}

		start := time.Now()
		n, err := cache.Scan(ctx, breakerScanner, devices, enumerator, nil, []lvmcache.Format{format})
		if err != nil {
			klog.Errorf("lvmcache-demo: scan failed: %v", err)
			return
		}
		if metrics != nil {
			metrics.ObserveScanDuration(time.Since(start).Seconds())
			metrics.SetNonOrphanVGs(n)
		}

		fmt.Printf("non-orphan VGs: %d\n", n)
		for _, vg := range cache.VGs() {
			fmt.Printf("  %s (pvs=%d exported=%v)\n", vg.Name(), vg.NumPVs(), vg.IsExported())
		}
		if cache.DuplicatesSeen() {
			for _, d := range cache.UnusedDuplicates() {
				fmt.Printf("  unused duplicate: %s\n", d.ID())
			}
		}

		if mw, ok := format.(vgformat.MetadataWriter); ok {
			for _, vg := range cache.VGs() {
				if vg.IsOrphan() {
					continue
				}
				data, err := vgcodec.Codec{}.Export(vg, cache.PVsOf(vg))
				if err != nil {
					klog.Warningf("lvmcache-demo: export %s: %v", vg.Name(), err)
					continue
				}
				path, err := mw.WriteVG(data)
				if err != nil {
					klog.Warningf("lvmcache-demo: persist %s metadata: %v", vg.Name(), err)
					continue
				}
				klog.V(2).Infof("lvmcache-demo: wrote independent metadata for %s to %s", vg.Name(), path)
			}
		}
	}

	if *scanInterval <= 0 {
		runOnce()
		return
	}

	ticker := time.NewTicker(*scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
