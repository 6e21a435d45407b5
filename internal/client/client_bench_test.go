package client

import (
	"context"
	"testing"
)

// BenchmarkClient_BuildRequest benchmarks HTTP request construction.
func BenchmarkClient_BuildRequest(b *testing.B) {
	client, _ := NewOpenMeteoClient("https://api.open-meteo.com/v1/forecast", Options{})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = client.buildRequest(ctx, lome)
	}
}

// BenchmarkClient_ParseCurrent benchmarks decoding the provider payload.
func BenchmarkClient_ParseCurrent(b *testing.B) {
	body := []byte(okBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = parseCurrent(body)
	}
}
