package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Message
	}{
		{
			name: "stream",
			line: `{"type":"stream","text":"hello\n"}`,
			want: Stream{Text: "hello\n"},
		},
		{
			name: "execute result",
			line: `{"type":"execute_result","text":"42"}`,
			want: Result{Text: "42"},
		},
		{
			name: "display data",
			line: `{"type":"display_data","text":"<Figure>"}`,
			want: Display{Text: "<Figure>"},
		},
		{
			name: "error",
			line: `{"type":"error","ename":"ZeroDivisionError","evalue":"division by zero","traceback":["Traceback:","  boom"]}`,
			want: Failure{
				Name:      "ZeroDivisionError",
				Value:     "division by zero",
				Traceback: []string{"Traceback:", "  boom"},
			},
		},
		{
			name: "error without name gets a default",
			line: `{"type":"error","evalue":"mystery"}`,
			want: Failure{Name: "Error", Value: "mystery"},
		},
		{
			name: "status busy",
			line: `{"type":"status","state":"busy"}`,
			want: Status{State: StateBusy},
		},
		{
			name: "status idle",
			line: `{"type":"status","state":"idle"}`,
			want: Status{State: StateIdle},
		},
		{
			name: "status with unknown state",
			line: `{"type":"status","state":"starting"}`,
			want: Ignored{},
		},
		{
			name: "unknown type",
			line: `{"type":"comm_open","data":{}}`,
			want: Ignored{},
		},
		{
			name: "malformed json",
			line: `{"type":`,
			want: Ignored{},
		},
		{
			name: "empty object",
			line: `{}`,
			want: Ignored{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify([]byte(tt.line)))
		})
	}
}
