package inference

import (
	"testing"

	"github.com/theirongolddev/emiscope/internal/profile"
)

func BenchmarkTransform(b *testing.B) {
	c := NewContext(fullSchema(), nil, nil, nil)
	p := profile.Defaults()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Transform(c, p)
	}
}

func BenchmarkPredict(b *testing.B) {
	c := NewContext(fullSchema(), &fixedClassifier{proba: []float64{0.8, 0.1, 0.1}}, fixedRegressor{value: 9000}, nil)
	p := profile.Defaults()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Predict(c, p); err != nil {
			b.Fatal(err)
		}
	}
}
