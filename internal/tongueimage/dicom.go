package tongueimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// dicomMagic follows the 128-byte preamble of a DICOM Part 10 file.
const (
	dicomPreambleLen = 128
	dicomMagic       = "DICM"
)

// IsDICOM reports whether data starts like a DICOM Part 10 file.
func IsDICOM(data []byte) bool {
	end := dicomPreambleLen + len(dicomMagic)
	return len(data) >= end && string(data[dicomPreambleLen:end]) == dicomMagic
}

// decodeDICOM returns the first frame of the pixel data as an image.
func decodeDICOM(data []byte) (image.Image, error) {
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse dicom: %w", err)
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("find pixel data: %w", err)
	}

	info, err := pixelDataInfo(elem.Value)
	if err != nil {
		return nil, err
	}
	if len(info.Frames) == 0 {
		return nil, errors.New("dicom has no frames")
	}

	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode dicom frame: %w", err)
	}
	return img, nil
}

// pixelDataInfo unwraps a PixelData value. A malformed file can carry any
// value type under the tag.
func pixelDataInfo(v dicom.Value) (dicom.PixelDataInfo, error) {
	if v == nil {
		return dicom.PixelDataInfo{}, fmt.Errorf("%w: dicom pixel data is empty", ErrUnsupported)
	}
	info, ok := v.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return dicom.PixelDataInfo{}, fmt.Errorf("%w: dicom pixel data holds %T", ErrUnsupported, v.GetValue())
	}
	return info, nil
}
