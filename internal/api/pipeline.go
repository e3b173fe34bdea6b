package api

import (
	"context"
	"fmt"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// PipelineHandler exposes a pipeline over the API.
type PipelineHandler struct {
	pipeline *core.Pipeline
}

// NewPipelineHandler creates a handler around the pipeline.
func NewPipelineHandler(p *core.Pipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: p}
}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body StatusResponse
}

// StatusResponse describes the pipeline and its host.
type StatusResponse struct {
	Pipeline string   `json:"pipeline" doc:"Pipeline name"`
	RunID    string   `json:"run_id" doc:"Run identifier of this pipeline instance"`
	Running  bool     `json:"running" doc:"Whether the pipeline is running"`
	Status   string   `json:"status" doc:"Human-readable status summary"`
	Blocks   int      `json:"blocks" doc:"Number of instantiated blocks"`
	Host     HostInfo `json:"host" doc:"Host machine information"`
}

// HostInfo carries host CPU facts.
type HostInfo struct {
	LogicalCPUs  int `json:"logical_cpus" doc:"Logical CPU count"`
	PhysicalCPUs int `json:"physical_cpus" doc:"Physical CPU count"`
}

// BlocksOutput is the output for the block list endpoint.
type BlocksOutput struct {
	Body BlocksResponse
}

// BlocksResponse lists the pipeline's blocks.
type BlocksResponse struct {
	Blocks []BlockSummary `json:"blocks" doc:"Blocks in the pipeline"`
}

// BlockSummary identifies one block and its state.
type BlockSummary struct {
	ID    string `json:"id" doc:"Unique block instance identifier"`
	Name  string `json:"name" doc:"Block instance name"`
	Type  string `json:"type" doc:"Block type"`
	State string `json:"state" doc:"Current lifecycle state"`
}

// BlockStatsInput selects a block by name.
type BlockStatsInput struct {
	Name string `path:"name" doc:"Block instance name"`
}

// BlockStatsOutput is the output for the block stats endpoint.
type BlockStatsOutput struct {
	Body BlockStatsResponse
}

// BlockStatsResponse is a point-in-time copy of one block's counters.
type BlockStatsResponse struct {
	Name            string  `json:"name" doc:"Block instance name"`
	FramesProcessed uint64  `json:"frames_processed" doc:"Frames processed"`
	FramesDropped   uint64  `json:"frames_dropped" doc:"Frames dropped"`
	BytesProcessed  uint64  `json:"bytes_processed" doc:"Bytes processed"`
	AvgFPS          float64 `json:"avg_fps" doc:"Average frames per second"`
	AvgLatencyMS    float64 `json:"avg_latency_ms" doc:"Average processing latency in milliseconds"`
	QueueDepth      int     `json:"queue_depth" doc:"Current queue depth"`
}

// ControlOutput is the output for the start and stop endpoints.
type ControlOutput struct {
	Body ControlResponse
}

// ControlResponse reports the pipeline's running state after a control
// operation.
type ControlResponse struct {
	Running bool   `json:"running" doc:"Whether the pipeline is running"`
	RunID   string `json:"run_id" doc:"Run identifier of this pipeline instance"`
}

// Register registers the pipeline routes with the API.
func (h *PipelineHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/api/v1/status",
		Summary:     "Get pipeline status",
		Tags:        []string{"Pipeline"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "listBlocks",
		Method:      "GET",
		Path:        "/api/v1/blocks",
		Summary:     "List pipeline blocks",
		Tags:        []string{"Blocks"},
	}, h.ListBlocks)

	huma.Register(api, huma.Operation{
		OperationID: "getBlockStats",
		Method:      "GET",
		Path:        "/api/v1/blocks/{name}/stats",
		Summary:     "Get one block's statistics",
		Tags:        []string{"Blocks"},
	}, h.GetBlockStats)

	huma.Register(api, huma.Operation{
		OperationID: "startPipeline",
		Method:      "POST",
		Path:        "/api/v1/pipeline/start",
		Summary:     "Start the pipeline",
		Tags:        []string{"Pipeline"},
	}, h.StartPipeline)

	huma.Register(api, huma.Operation{
		OperationID: "stopPipeline",
		Method:      "POST",
		Path:        "/api/v1/pipeline/stop",
		Summary:     "Stop the pipeline",
		Tags:        []string{"Pipeline"},
	}, h.StopPipeline)
}

// GetStatus returns the pipeline summary and host CPU facts.
func (h *PipelineHandler) GetStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	resp := StatusResponse{
		Pipeline: h.pipeline.Name(),
		RunID:    h.pipeline.RunID(),
		Running:  h.pipeline.IsRunning(),
		Status:   h.pipeline.Status(),
		Blocks:   len(h.pipeline.BlockNames()),
	}

	// CPU facts are best-effort; a probe failure leaves zeros.
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		resp.Host.LogicalCPUs = n
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		resp.Host.PhysicalCPUs = n
	}

	return &StatusOutput{Body: resp}, nil
}

// ListBlocks returns every block with its type and state.
func (h *PipelineHandler) ListBlocks(_ context.Context, _ *struct{}) (*BlocksOutput, error) {
	names := h.pipeline.BlockNames()
	sort.Strings(names)

	resp := BlocksResponse{Blocks: make([]BlockSummary, 0, len(names))}
	for _, name := range names {
		b := h.pipeline.Block(name)
		if b == nil {
			continue
		}
		resp.Blocks = append(resp.Blocks, BlockSummary{
			ID:    b.ID(),
			Name:  b.Name(),
			Type:  b.Type(),
			State: b.State().String(),
		})
	}
	return &BlocksOutput{Body: resp}, nil
}

// GetBlockStats returns one block's counters.
func (h *PipelineHandler) GetBlockStats(_ context.Context, input *BlockStatsInput) (*BlockStatsOutput, error) {
	b := h.pipeline.Block(input.Name)
	if b == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("block %q not found", input.Name))
	}

	stats := b.Stats()
	return &BlockStatsOutput{Body: BlockStatsResponse{
		Name:            b.Name(),
		FramesProcessed: stats.FramesProcessed,
		FramesDropped:   stats.FramesDropped,
		BytesProcessed:  stats.BytesProcessed,
		AvgFPS:          stats.AvgFPS,
		AvgLatencyMS:    stats.AvgLatencyMS,
		QueueDepth:      stats.QueueDepth,
	}}, nil
}

// StartPipeline starts the pipeline.
func (h *PipelineHandler) StartPipeline(_ context.Context, _ *struct{}) (*ControlOutput, error) {
	if err := h.pipeline.Start(); err != nil {
		return nil, huma.Error409Conflict(fmt.Sprintf("starting pipeline: %v", err))
	}
	return &ControlOutput{Body: ControlResponse{
		Running: h.pipeline.IsRunning(),
		RunID:   h.pipeline.RunID(),
	}}, nil
}

// StopPipeline stops the pipeline.
func (h *PipelineHandler) StopPipeline(_ context.Context, _ *struct{}) (*ControlOutput, error) {
	if err := h.pipeline.Stop(); err != nil {
		return nil, huma.Error409Conflict(fmt.Sprintf("stopping pipeline: %v", err))
	}
	return &ControlOutput{Body: ControlResponse{
		Running: h.pipeline.IsRunning(),
		RunID:   h.pipeline.RunID(),
	}}, nil
}
