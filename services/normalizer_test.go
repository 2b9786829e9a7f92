package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextNormalizerCell(t *testing.T) {
	tn := NewTextNormalizer()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  KL SENTRAL  ", "KL SENTRAL"},
		{"NOMBOR\nTREN", "NOMBOR TREN"},
		{"09:30 ", "09:30"},
		{"１０:１５", "10:15"},
		{"ﬁrst", "first"},
		{"BATU  \t CAVES", "BATU CAVES"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tn.Cell(tt.in), "input %q", tt.in)
	}
}

func TestTextNormalizerRowCopies(t *testing.T) {
	tn := NewTextNormalizer()
	in := []string{" a ", "b\n"}
	out := tn.Row(in)
	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, " a ", in[0])
}
