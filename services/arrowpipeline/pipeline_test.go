package arrowpipeline

import (
	"testing"

	"pbh-backtest/services/engine"
)

func TestBarStreamRoundTrip(t *testing.T) {
	p, err := NewPipeline(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	in := []engine.Bar{
		{Timestamp: 1000, Open: 100, High: 101, Low: 99.5, Close: 100.5, Volume: 1200},
		{Timestamp: 2000, Open: 100.5, High: 102, Low: 100, Close: 101.8, Volume: 1500},
	}
	data, err := p.ConvertBars(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.ReadBars(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d bars, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("bar %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestConvertBarsEmpty(t *testing.T) {
	p, _ := NewPipeline(nil, nil)
	if _, err := p.ConvertBars(nil); err == nil {
		t.Fatal("empty series accepted")
	}
}
