package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"

	"mcp-a2a/internal/pdf"
)

func fakeExtractor(pages map[string][]string) pdf.Extractor {
	return pdf.ExtractorFunc(func(_ context.Context, path string) (string, error) {
		content, ok := pages[path]
		if !ok {
			return "", errors.New("open pdf: no such file " + path)
		}
		return pdf.JoinPages(content), nil
	})
}

func newTestClient(t *testing.T, extractor pdf.Extractor) *Client {
	t.Helper()
	ctx := context.Background()
	client, err := ConnectInProcess(ctx, NewPDFServer(extractor, "test"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestParsePDFJoinsPages(t *testing.T) {
	client := newTestClient(t, fakeExtractor(map[string][]string{"/tmp/a.pdf": {"A", "B"}}))

	text, err := client.ParsePDF(context.Background(), "/tmp/a.pdf")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "A\n\nB" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestParsePDFToolError(t *testing.T) {
	client := newTestClient(t, fakeExtractor(nil))

	_, err := client.ParsePDF(context.Background(), "/tmp/missing.pdf")
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("expected tool error, got %v", err)
	}
	if toolErr.Tool != ToolParsePDF || !strings.Contains(toolErr.Message, "missing.pdf") {
		t.Fatalf("unexpected tool error %+v", toolErr)
	}

	if _, err := client.ParsePDF(context.Background(), " "); !errors.As(err, &toolErr) {
		t.Fatalf("expected tool error for empty path, got %v", err)
	}
}

func TestToolsDescribeParsePDF(t *testing.T) {
	client := newTestClient(t, fakeExtractor(nil))

	specs, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != ToolParsePDF {
		t.Fatalf("unexpected tools %+v", specs)
	}
	if p, ok := specs[0].Params["path"]; !ok || p.Type != "string" {
		t.Fatalf("path parameter missing: %+v", specs[0].Params)
	}
}

func TestEinoToolBridge(t *testing.T) {
	client := newTestClient(t, fakeExtractor(map[string][]string{"/tmp/a.pdf": {"Hola"}}))
	ctx := context.Background()

	tools, err := EinoTools(ctx, client)
	if err != nil {
		t.Fatalf("eino tools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %d", len(tools))
	}
	info, err := tools[0].Info(ctx)
	if err != nil || info.Name != ToolParsePDF {
		t.Fatalf("unexpected info %+v %v", info, err)
	}
	invokable := tools[0].(tool.InvokableTool)

	out, err := invokable.InvokableRun(ctx, `{"path":"/tmp/a.pdf"}`)
	if err != nil || out != "Hola" {
		t.Fatalf("unexpected result %q %v", out, err)
	}
	out, err = invokable.InvokableRun(ctx, `{"path":"/tmp/nope.pdf"}`)
	if err != nil || !strings.HasPrefix(out, "Error: ") {
		t.Fatalf("tool failure should be reported to the model, got %q %v", out, err)
	}
	if _, err := invokable.InvokableRun(ctx, `{not json`); err == nil {
		t.Fatalf("expected argument parse error")
	}
}

func TestExtractSession(t *testing.T) {
	client := newTestClient(t, fakeExtractor(map[string][]string{"/data/report.pdf": {"p1", "p2"}}))
	session := NewExtractSession(client)

	out, err := session.Invoke(context.Background(), "Parse this PDF file: /data/report.pdf")
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out != "p1\n\np2" {
		t.Fatalf("unexpected output %q", out)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPathFromInput(t *testing.T) {
	cases := map[string]string{
		"/tmp/a.pdf":      "/tmp/a.pdf",
		"  /tmp/a.pdf \n": "/tmp/a.pdf",
		"Parse this PDF file: /data/x/Report.PDF": "/data/x/Report.PDF",
		`Please parse the pdf at "sample.pdf"`:    "sample.pdf",
		"no path here":                            "no path here",
	}
	for in, want := range cases {
		if got := PathFromInput(in); got != want {
			t.Fatalf("PathFromInput(%q) = %q, want %q", in, got, want)
		}
	}
}
