package console

import (
	"bytes"
	"context"
	"testing"

	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

func TestConsoleWritesInOrder(t *testing.T) {
	var buf bytes.Buffer
	a := New(&buf, logx.Nop())
	ctx := context.Background()

	r1, err := a.SendSummary(ctx, kit.Summary{Title: "Branch public has been updated", BuildID: "9"})
	if err != nil {
		t.Fatal(err)
	}
	r2, _ := a.SendText(ctx, "line")
	if r1.ID != "1" || r2.ID != "2" {
		t.Fatalf("refs = %+v %+v", r1, r2)
	}
	if err := a.Crosspost(ctx, r1); err != nil {
		t.Fatal(err)
	}
	want := "== Branch public has been updated (build 9)\nline\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}
