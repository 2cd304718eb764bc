package cache

import (
	"strconv"
	"testing"
	"time"

	"github.com/kjstillabower/geoweather-gateway/internal/models"
)

func testCandidates() []models.GeoCandidate {
	return []models.GeoCandidate{
		{Name: "東京都", Country: "日本", Latitude: 35.6895, Longitude: 139.69171, Timezone: "Asia/Tokyo"},
		{Name: "東京", Country: "日本", Admin1: "東京都", Latitude: 35.6762, Longitude: 139.6503, Timezone: "Asia/Tokyo"},
	}
}

// BenchmarkTTLCache_Get_Hit benchmarks Get on a present key.
func BenchmarkTTLCache_Get_Hit(b *testing.B) {
	c := New[[]models.GeoCandidate]("bench", 100, time.Hour)
	c.Set("geocode:tokyo:5", testCandidates())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get("geocode:tokyo:5")
	}
}

// BenchmarkTTLCache_Get_Miss benchmarks Get on an absent key.
func BenchmarkTTLCache_Get_Miss(b *testing.B) {
	c := New[[]models.GeoCandidate]("bench", 100, time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get("nonexistent")
	}
}

// BenchmarkTTLCache_Set_Evicting benchmarks Set when every insert evicts.
func BenchmarkTTLCache_Set_Evicting(b *testing.B) {
	c := New[[]models.GeoCandidate]("bench", 100, time.Hour)
	data := testCandidates()
	keys := make([]string, 1000)
	for i := range keys {
		keys[i] = "geocode:place" + strconv.Itoa(i) + ":5"
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Set(keys[i%len(keys)], data)
	}
}

// BenchmarkTTLCache_Concurrent benchmarks mixed reads and writes across goroutines.
func BenchmarkTTLCache_Concurrent(b *testing.B) {
	c := New[[]models.GeoCandidate]("bench", 200, time.Hour)
	data := testCandidates()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := "forecast:" + strconv.Itoa(i%300)
			if i%4 == 0 {
				c.Set(key, data)
			} else {
				_, _ = c.Get(key)
			}
			i++
		}
	})
}
