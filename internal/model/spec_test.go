package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResizeMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ResizeMode
		wantErr bool
	}{
		{in: "", want: ResizeFit},
		{in: "fit", want: ResizeFit},
		{in: "fill", want: ResizeFill},
		{in: "stretch", want: ResizeStretch},
		{in: "zoom", wantErr: true},
		{in: "Fit", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseResizeMode(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownResizeMode)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseCropRect(t *testing.T) {
	got, err := ParseCropRect("10, 20, 300, 400")
	require.NoError(t, err)
	require.Equal(t, &CropRect{X: 10, Y: 20, W: 300, H: 400}, got)

	_, err = ParseCropRect("10,20,300")
	require.Error(t, err)
	_, err = ParseCropRect("10,20,3a0,400")
	require.Error(t, err)
}

func TestColorValue_JSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ColorValue
	}{
		{name: "named", in: `"white"`, want: ColorValue{Name: "white"}},
		{name: "hex", in: `"#80ff00"`, want: ColorValue{Name: "#80ff00"}},
		{name: "rgb", in: `[16,32,48]`, want: ColorValue{Components: []uint8{16, 32, 48}}},
		{name: "rgba", in: `[16,32,48,128]`, want: ColorValue{Components: []uint8{16, 32, 48, 128}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c ColorValue
			require.NoError(t, json.Unmarshal([]byte(tt.in), &c))
			require.Equal(t, tt.want, c)

			// Round-trips in the original form.
			out, err := json.Marshal(c)
			require.NoError(t, err)
			require.JSONEq(t, tt.in, string(out))
		})
	}

	var c ColorValue
	require.Error(t, json.Unmarshal([]byte(`[16,32]`), &c))
	require.Error(t, json.Unmarshal([]byte(`true`), &c))
}

func TestColorValue_Label(t *testing.T) {
	require.Equal(t, "white", ColorValue{Name: "white"}.Label())
	require.Equal(t, "16-32-48", ColorValue{Components: []uint8{16, 32, 48}}.Label())
}

func TestRenditionSpec_FillAnchor(t *testing.T) {
	x, y := RenditionSpec{}.FillAnchor()
	require.Equal(t, 0.5, x)
	require.Equal(t, 0.5, y)

	left := 0.0
	bottom := 1.0
	x, y = RenditionSpec{FillCropX: &left, FillCropY: &bottom}.FillAnchor()
	require.Equal(t, 0.0, x)
	require.Equal(t, 1.0, y)
}
