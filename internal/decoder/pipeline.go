package decoder

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/fluxvision/ingest/internal/nal"
)

// surface is one slot in a decoder's fixed-size frame pool. inUse marks a
// slot as borrowed by a caller holding the Frame returned from GetFrame;
// the slot is released when the next Decode call borrows a new one.
type surface struct {
	data  []byte
	inUse bool
}

// gstDecoder implements Decoder over a GStreamer pipeline of
// appsrc ! h264parse/h265parse ! <decode element> [! vaapipostproc] !
// capsfilter ! appsink, with vaapipostproc on the hardware path only.
// The same struct backs both the hardware and software variants; only
// pipeline element selection differs between them.
type gstDecoder struct {
	mu sync.Mutex

	cfg      Config
	hardware bool

	pipeline *gst.Pipeline
	appsrc   *app.Source
	appsink  *app.Sink

	surfaces     []surface
	nextSurface  int
	latestFrame  *Frame

	gpuBytesUsed    uint64
	systemBytesUsed uint64
}

func elementFormat(codec nal.Codec) (parseElem, vaapiElem, softwareElem string) {
	if codec == nal.CodecH265 {
		return "h265parse", "vaapih265dec", "avdec_h265"
	}
	return "h264parse", "vaapih264dec", "avdec_h264"
}

func buildPipeline(cfg Config, hardware bool) (*gstDecoder, error) {
	gst.Init(nil)

	// GST_VAAPI_DRM_DEVICE pins this pipeline's VA-API display to the
	// render node matching cfg.GPU.DeviceID, so every camera assigned to
	// the same decode worker binds to the same device instead of each
	// picking one independently.
	if hardware {
		os.Setenv("GST_VAAPI_DRM_DEVICE", renderNodePath(cfg.GPU.DeviceID))
	}
	slog.Debug("decoder: building pipeline", "worker", cfg.GPU.WorkerID, "device", cfg.GPU.DeviceID, "hardware", hardware)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("decoder: new pipeline: %w", err)
	}

	appsrcElem, err := gst.NewElement("appsrc")
	if err != nil {
		return nil, fmt.Errorf("decoder: new appsrc: %w", err)
	}
	appsrcElem.SetProperty("is-live", true)
	appsrcElem.SetProperty("format", int(gst.FormatTime))
	appsrc := app.SrcFromElement(appsrcElem)

	parseElemName, vaapiElemName, softwareElemName := elementFormat(cfg.Codec)
	parseElem, err := gst.NewElement(parseElemName)
	if err != nil {
		return nil, fmt.Errorf("decoder: new %s: %w", parseElemName, err)
	}

	var decodeElem *gst.Element
	format := PixelFormatYUV420P
	var postproc *gst.Element

	if hardware {
		decodeElem, err = gst.NewElement(vaapiElemName)
		if err != nil {
			decodeElem, err = gst.NewElement("vaapidecodebin")
			if err != nil {
				return nil, fmt.Errorf("decoder: VA-API decoder unavailable: %w", err)
			}
		} else {
			decodeElem.SetProperty("low-latency", true)
		}
		postproc, err = gst.NewElement("vaapipostproc")
		if err != nil {
			return nil, fmt.Errorf("decoder: new vaapipostproc: %w", err)
		}
		postproc.SetProperty("format", "nv12")
		if cfg.MaxWidth > 0 {
			postproc.SetProperty("width", cfg.MaxWidth)
		}
		if cfg.MaxHeight > 0 {
			postproc.SetProperty("height", cfg.MaxHeight)
		}
		format = PixelFormatNV12
	} else {
		decodeElem, err = gst.NewElement(softwareElemName)
		if err != nil {
			return nil, fmt.Errorf("decoder: new %s: %w", softwareElemName, err)
		}
		decodeElem.SetProperty("max-threads", 0)
		decodeElem.SetProperty("output-corrupt", false)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("decoder: new capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=%s", format.String())
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("decoder: new appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", 1)
	sink.SetProperty("drop", true)

	elements := []*gst.Element{appsrcElem, parseElem, decodeElem}
	if postproc != nil {
		elements = append(elements, postproc)
	}
	elements = append(elements, capsfilter, sink.Element)

	if err := pipeline.AddMany(elements...); err != nil {
		return nil, fmt.Errorf("decoder: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(elements...); err != nil {
		return nil, fmt.Errorf("decoder: link elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("decoder: set playing: %w", err)
	}

	poolSize := SurfacePoolSize(cfg.Quality)
	surfaceBytes := surfaceByteSize(cfg.MaxWidth, cfg.MaxHeight, format)

	d := &gstDecoder{
		cfg:             cfg,
		hardware:        hardware,
		pipeline:        pipeline,
		appsrc:          appsrc,
		appsink:         sink,
		surfaces:        make([]surface, poolSize),
		systemBytesUsed: 0,
	}
	for i := range d.surfaces {
		d.surfaces[i].data = make([]byte, surfaceBytes)
	}
	if hardware {
		d.gpuBytesUsed = uint64(poolSize) * uint64(surfaceBytes)
	} else {
		d.systemBytesUsed = uint64(poolSize) * uint64(surfaceBytes)
	}

	return d, nil
}

// surfaceByteSize estimates a plane-packed frame's footprint for the
// accountant: NV12/YUV420P are both 1.5 bytes/pixel with 4:2:0 chroma.
func surfaceByteSize(width, height int, format PixelFormat) int {
	if width <= 0 {
		width = 1920
	}
	if height <= 0 {
		height = 1080
	}
	return width * height * 3 / 2
}

func (d *gstDecoder) Decode(data []byte) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := gst.NewBufferFromBytes(data)
	if buf == nil {
		return Result{Status: StatusErrorInvalidData}, fmt.Errorf("decoder: failed to wrap input buffer")
	}
	if ret := d.appsrc.PushBuffer(buf); ret != gst.FlowOK {
		return Result{Status: StatusErrorDecoderFailure}, fmt.Errorf("decoder: appsrc push failed: %v", ret)
	}

	sample := d.appsink.PullSample()
	if sample == nil {
		return Result{Status: StatusNeedMoreData}, nil
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return Result{Status: StatusNeedMoreData}, nil
	}

	mapInfo := buffer.Map(gst.MapRead)
	raw := mapInfo.Bytes()
	defer buffer.Unmap()
	if len(raw) == 0 {
		return Result{Status: StatusNeedMoreData}, nil
	}

	slot := d.borrowSurface()
	n := copy(d.surfaces[slot].data, raw)

	buf := d.surfaces[slot].data[:n]
	w, h := d.cfg.MaxWidth, d.cfg.MaxHeight
	planes, pitches := [][]byte{buf}, []int{w}
	if ySize := w * h; ySize > 0 && n >= ySize*3/2 {
		if d.hardware { // NV12: Y, then interleaved UV at the same pitch
			planes, pitches = [][]byte{buf[:ySize], buf[ySize:]}, []int{w, w}
		} else { // YUV420P: Y, U, V, chroma at half pitch
			q := ySize / 4
			planes, pitches = [][]byte{buf[:ySize], buf[ySize : ySize+q], buf[ySize+q:]}, []int{w, w / 2, w / 2}
		}
	}

	frame := &Frame{
		Data:         planes,
		Pitch:        pitches,
		Width:        d.cfg.MaxWidth,
		Height:       d.cfg.MaxHeight,
		Format:       d.currentFormat(),
		PTS:          time.Now().UnixMicro(),
		surfaceIndex: slot,
	}
	d.latestFrame = frame

	return Result{Status: StatusSuccess, Frame: frame}, nil
}

// borrowSurface returns the pool slot for the next decoded frame,
// releasing the previously-returned slot back to the pool first. Round-
// robin reuse matches the original NVDEC surface pool's in-use-bit
// discipline: a caller must consume a frame before the pool wraps back
// around to its slot.
func (d *gstDecoder) borrowSurface() int {
	if d.latestFrame != nil {
		d.surfaces[d.latestFrame.surfaceIndex].inUse = false
	}
	slot := d.nextSurface
	d.nextSurface = (d.nextSurface + 1) % len(d.surfaces)
	d.surfaces[slot].inUse = true
	return slot
}

func (d *gstDecoder) currentFormat() PixelFormat {
	if d.hardware {
		return PixelFormatNV12
	}
	return PixelFormatYUV420P
}

func (d *gstDecoder) GetFrame() *Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latestFrame
}

func (d *gstDecoder) SetQuality(q Quality) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q == d.cfg.Quality {
		return
	}
	d.cfg.Quality = q
	d.resizeSurfacePool(SurfacePoolSize(q))
}

// resizeSurfacePool grows or shrinks the surface pool to match a new
// quality level's memory budget without tearing down the pipeline.
func (d *gstDecoder) resizeSurfacePool(size int) {
	if size == len(d.surfaces) {
		return
	}
	bytesPer := surfaceByteSize(d.cfg.MaxWidth, d.cfg.MaxHeight, d.currentFormat())
	if size < len(d.surfaces) {
		d.surfaces = d.surfaces[:size]
	} else {
		for i := len(d.surfaces); i < size; i++ {
			d.surfaces = append(d.surfaces, surface{data: make([]byte, bytesPer)})
		}
	}
	d.nextSurface = d.nextSurface % size
	total := uint64(size) * uint64(bytesPer)
	if d.hardware {
		d.gpuBytesUsed = total
	} else {
		d.systemBytesUsed = total
	}
	slog.Debug("decoder: surface pool resized", "size", size, "hardware", d.hardware)
}

func (d *gstDecoder) MemoryUsage() MemoryStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return MemoryStats{
		GPUMemoryBytes:      d.gpuBytesUsed,
		SystemMemoryBytes:   d.systemBytesUsed,
		SurfacePoolSize:     len(d.surfaces),
		SurfacePoolCapacity: len(d.surfaces),
	}
}

func (d *gstDecoder) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return nil
	}
	return d.pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush, 0)
}

func (d *gstDecoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latestFrame = nil
	for i := range d.surfaces {
		d.surfaces[i].inUse = false
	}
	d.nextSurface = 0
	return nil
}

func (d *gstDecoder) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *gstDecoder) IsHardwareAccelerated() bool {
	return d.hardware
}

func (d *gstDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipeline == nil {
		return nil
	}
	err := d.pipeline.SetState(gst.StateNull)
	d.pipeline = nil
	return err
}

// vaapiElementAvailable reports whether a VA-API decode element can be
// constructed on this host, without keeping the element around.
func vaapiElementAvailable(codec nal.Codec) bool {
	_, vaapiElemName, _ := elementFormat(codec)
	elem, err := gst.NewElement(vaapiElemName)
	if err != nil {
		elem, err = gst.NewElement("vaapidecodebin")
		if err != nil {
			return false
		}
	}
	_ = elem
	return true
}

// renderNodeCount counts VA-API-capable DRM render nodes under /dev/dri,
// used by the capability probe to report a device count the way the
// original reported a CUDA device count.
func renderNodeCount() int {
	return len(renderNodes())
}

func renderNodes() []string {
	entries, err := os.ReadDir("/dev/dri")
	if err != nil {
		return nil
	}
	var nodes []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			nodes = append(nodes, e.Name())
		}
	}
	sort.Strings(nodes)
	return nodes
}

// renderNodePath resolves deviceID to a DRM render node path. On a host
// with fewer render nodes than deviceID implies, it falls back to the
// conventional renderD128+deviceID numbering rather than erroring, since
// a single-GPU host only ever has deviceID 0 in practice.
func renderNodePath(deviceID int) string {
	nodes := renderNodes()
	if deviceID >= 0 && deviceID < len(nodes) {
		return "/dev/dri/" + nodes[deviceID]
	}
	return fmt.Sprintf("/dev/dri/renderD%d", 128+deviceID)
}
