package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsReader       int64
	errorsProcessor    int64
	errorsWriter       int64
	warnsReader        int64
	warnsProcessor     int64
	warnsWriter        int64
	listingsRead       int64
	snapshotsEvaluated int64
	violationsFMR      int64
	violationsIncrease int64
	malformedSkips     int64
	referenceGapSkips  int64
	storeInserts       int64
	storeDuplicates    int64
	archiveUploads     int64
	channels           sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "reader"):
		atomic.AddInt64(&warnsReader, 1)
	case strings.Contains(component, "processor") || strings.Contains(component, "detector"):
		atomic.AddInt64(&warnsProcessor, 1)
	case strings.Contains(component, "writer") || strings.Contains(component, "store"):
		atomic.AddInt64(&warnsWriter, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "reader"):
		atomic.AddInt64(&errorsReader, 1)
	case strings.Contains(component, "processor") || strings.Contains(component, "detector"):
		atomic.AddInt64(&errorsProcessor, 1)
	case strings.Contains(component, "writer") || strings.Contains(component, "store"):
		atomic.AddInt64(&errorsWriter, 1)
	}
}

// IncrementListingRead records one raw listing payload received from the
// provider along with its size in bytes.
func IncrementListingRead(size int) {
	atomic.AddInt64(&listingsRead, 1)
	recordChannel("provider_rest", size)
}

func IncrementSnapshotEvaluated() {
	atomic.AddInt64(&snapshotsEvaluated, 1)
}

// IncrementViolation records a detected violation by its type string.
func IncrementViolation(violationType string) {
	if strings.Contains(violationType, "increase") {
		atomic.AddInt64(&violationsIncrease, 1)
		return
	}
	atomic.AddInt64(&violationsFMR, 1)
}

func IncrementMalformedSkip() {
	atomic.AddInt64(&malformedSkips, 1)
}

func IncrementReferenceGapSkip() {
	atomic.AddInt64(&referenceGapSkips, 1)
}

func IncrementStoreInsert() {
	atomic.AddInt64(&storeInserts, 1)
}

func IncrementStoreDuplicate() {
	atomic.AddInt64(&storeDuplicates, 1)
}

func IncrementArchiveUpload(size int64) {
	atomic.AddInt64(&archiveUploads, 1)
	recordChannel("s3_archive_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// RunCounts is a point-in-time copy of the run counters, logged as the
// end-of-run summary.
type RunCounts struct {
	ListingsRead       int64
	SnapshotsEvaluated int64
	ViolationsFMR      int64
	ViolationsIncrease int64
	MalformedSkips     int64
	ReferenceGapSkips  int64
	StoreInserts       int64
	StoreDuplicates    int64
	ArchiveUploads     int64
}

func Counts() RunCounts {
	return RunCounts{
		ListingsRead:       atomic.LoadInt64(&listingsRead),
		SnapshotsEvaluated: atomic.LoadInt64(&snapshotsEvaluated),
		ViolationsFMR:      atomic.LoadInt64(&violationsFMR),
		ViolationsIncrease: atomic.LoadInt64(&violationsIncrease),
		MalformedSkips:     atomic.LoadInt64(&malformedSkips),
		ReferenceGapSkips:  atomic.LoadInt64(&referenceGapSkips),
		StoreInserts:       atomic.LoadInt64(&storeInserts),
		StoreDuplicates:    atomic.LoadInt64(&storeDuplicates),
		ArchiveUploads:     atomic.LoadInt64(&archiveUploads),
	}
}

// LogRunSummary writes the user-visible completion report: listings
// evaluated, violations per type and skips per reason.
func LogRunSummary(log *Log) {
	c := Counts()
	log.WithComponent("report").WithFields(Fields{
		"listings_read":        c.ListingsRead,
		"snapshots_evaluated":  c.SnapshotsEvaluated,
		"violations_fmr_rate":  c.ViolationsFMR,
		"violations_increase":  c.ViolationsIncrease,
		"skipped_malformed":    c.MalformedSkips,
		"skipped_no_fmr_entry": c.ReferenceGapSkips,
		"store_inserts":        c.StoreInserts,
		"store_duplicates":     c.StoreDuplicates,
		"archive_uploads":      c.ArchiveUploads,
	}).Info("run complete")
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	c := Counts()
	fields := Fields{
		"errors_reader":        atomic.LoadInt64(&errorsReader),
		"errors_processor":     atomic.LoadInt64(&errorsProcessor),
		"errors_writer":        atomic.LoadInt64(&errorsWriter),
		"warns_reader":         atomic.LoadInt64(&warnsReader),
		"warns_processor":      atomic.LoadInt64(&warnsProcessor),
		"warns_writer":         atomic.LoadInt64(&warnsWriter),
		"listings_read":        c.ListingsRead,
		"snapshots_evaluated":  c.SnapshotsEvaluated,
		"violations_fmr_rate":  c.ViolationsFMR,
		"violations_increase":  c.ViolationsIncrease,
		"skipped_malformed":    c.MalformedSkips,
		"skipped_no_fmr_entry": c.ReferenceGapSkips,
		"store_inserts":        c.StoreInserts,
		"store_duplicates":     c.StoreDuplicates,
		"archive_uploads":      c.ArchiveUploads,
		"goroutines":           runtime.NumGoroutine(),
		"cpu_percent":          cpuPct,
		"memory_mb":            int64(memStats.Used) / 1024 / 1024,
		"channels":             channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("ListingsRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.ListingsRead))},
		{MetricName: aws.String("SnapshotsEvaluated"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.SnapshotsEvaluated))},
		{MetricName: aws.String("ViolationsFMRRate"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.ViolationsFMR))},
		{MetricName: aws.String("ViolationsPriceIncrease"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.ViolationsIncrease))},
		{MetricName: aws.String("SkippedMalformed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.MalformedSkips))},
		{MetricName: aws.String("SkippedNoFMREntry"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.ReferenceGapSkips))},
		{MetricName: aws.String("StoreInserts"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.StoreInserts))},
		{MetricName: aws.String("StoreDuplicates"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.StoreDuplicates))},
		{MetricName: aws.String("ArchiveUploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.ArchiveUploads))},
	}

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
