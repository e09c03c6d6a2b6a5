package common

import (
	"image"
	"time"
)

const (
	TILE_SIZE = 256

	JobTypeTile = "tile"
)

// ImageTile is one tile of an image together with the padding around it
// that the blur needs. Pixels holds the packed padded region.
type ImageTile struct {
	ImageID   int     `cbor:"image_id"`
	TileID    int     `cbor:"tile_id"`
	X         int     `cbor:"x"`
	Y         int     `cbor:"y"`
	Width     int     `cbor:"width"`
	Height    int     `cbor:"height"`
	PadX      int     `cbor:"pad_x"`
	PadY      int     `cbor:"pad_y"`
	PadWidth  int     `cbor:"pad_width"`
	PadHeight int     `cbor:"pad_height"`
	Sigma     float64 `cbor:"sigma"`
	Pixels    []byte  `cbor:"pixels"`
}

// Bounds is the tile itself in image coordinates.
func (t *ImageTile) Bounds() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height)
}

// PaddedBounds is the region covered by Pixels in image coordinates.
func (t *ImageTile) PaddedBounds() image.Rectangle {
	return image.Rect(t.PadX, t.PadY, t.PadX+t.PadWidth, t.PadY+t.PadHeight)
}

// ProcessedImageTile is a blurred tile with the padding removed.
type ProcessedImageTile struct {
	ImageID int    `cbor:"image_id"`
	TileID  int    `cbor:"tile_id"`
	X       int    `cbor:"x"`
	Y       int    `cbor:"y"`
	Width   int    `cbor:"width"`
	Height  int    `cbor:"height"`
	Pixels  []byte `cbor:"pixels"`
}

func (t *ProcessedImageTile) Bounds() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height)
}

type ImageInfo struct {
	ID            int       `cbor:"id"`
	InputPath     string    `cbor:"input_path"`
	OutputPath    string    `cbor:"output_path"`
	Width         int       `cbor:"width"`
	Height        int       `cbor:"height"`
	Sigma         float64   `cbor:"sigma"`
	ExpectedTiles int       `cbor:"expected_tiles"`
	StartTime     time.Time `cbor:"start_time"`
}

type JobMessage struct {
	Type      string     `cbor:"type"`
	ImageTile *ImageTile `cbor:"image_tile,omitempty"`
}

type ResultMessage struct {
	ProcessedTile *ProcessedImageTile `cbor:"processed_tile"`
	WorkerID      string              `cbor:"worker_id"`
	ProcessTime   float64             `cbor:"process_time"`
}
