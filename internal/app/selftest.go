package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"editormcp/internal/domain"
	"editormcp/internal/infra/framing"
	"editormcp/internal/tools"
)

const selfTestTimeout = 10 * time.Second

// SelfTestReport describes one loopback round trip.
type SelfTestReport struct {
	Tool     string          `json:"tool"`
	Response domain.Response `json:"response"`
	Duration time.Duration   `json:"durationNs"`
}

// RunSelfTest starts a full application over in-memory pipes, sends a
// server info call and checks the answer.
func RunSelfTest(ctx context.Context, cfg domain.Config, logger *zap.Logger) (SelfTestReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Transport.Kind = domain.TransportStdio
	cfg.Observability.Metrics = false
	cfg.Observability.Healthz = false

	ctx, cancel := context.WithTimeout(ctx, selfTestTimeout)
	defer cancel()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer func() {
		_ = inW.Close()
		_ = outR.Close()
	}()

	app, err := InitializeApplication(ctx, ServeConfig{
		Config: cfg,
		IO:     StdIO{In: inR, Out: outW},
	}, LoggingConfig{Logger: logger})
	if err != nil {
		return SelfTestReport{}, err
	}
	if err := app.Start(ctx); err != nil {
		return SelfTestReport{}, err
	}
	defer app.Stop()

	report := SelfTestReport{Tool: tools.ServerInfoID}
	request := domain.Request{
		JSONRPC: domain.JSONRPCVersion,
		ID:      json.RawMessage(`"selftest-1"`),
		Method:  domain.MethodToolCall,
		Params:  json.RawMessage(fmt.Sprintf(`{"tool":%q,"arguments":{}}`, tools.ServerInfoID)),
	}

	start := time.Now()
	writeErr := make(chan error, 1)
	go func() {
		_, err := framing.NewLineWriter(inW).WriteJSON(request)
		writeErr <- err
	}()

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult, 1)
	go func() {
		line, err := framing.NewLineReader(outR).ReadLine()
		lines <- readResult{line: line, err: err}
	}()

	var got readResult
	select {
	case <-ctx.Done():
		return report, fmt.Errorf("self test: %w", ctx.Err())
	case got = <-lines:
	}
	report.Duration = time.Since(start)
	if err := <-writeErr; err != nil {
		return report, fmt.Errorf("self test: write request: %w", err)
	}
	if got.err != nil {
		return report, fmt.Errorf("self test: read response: %w", got.err)
	}
	if err := json.Unmarshal([]byte(got.line), &report.Response); err != nil {
		return report, fmt.Errorf("self test: decode response: %w", err)
	}
	return report, checkSelfTest(request, report.Response)
}

func checkSelfTest(request domain.Request, resp domain.Response) error {
	if string(resp.ID) != string(request.ID) {
		return fmt.Errorf("self test: response id %s does not match %s", resp.ID, request.ID)
	}
	if resp.Error != nil {
		return fmt.Errorf("self test: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}
	if resp.Result == nil {
		return fmt.Errorf("self test: response carries no result")
	}
	if ok, _ := resp.Result.Output["success"].(bool); !ok {
		return fmt.Errorf("self test: %s did not report success", resp.Result.Tool)
	}
	return nil
}
