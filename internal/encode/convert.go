package encode

import "image"

// CropRGBA converts a BGRA crop window into a freshly allocated RGBA image.
// stride is the source row length in bytes and may exceed w*4.
func CropRGBA(pix []byte, stride, x, y, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for row := 0; row < h; row++ {
		src := (y+row)*stride + x*4
		dst := row * img.Stride
		for col := 0; col < w; col++ {
			if src+3 >= len(pix) {
				return img
			}
			img.Pix[dst+0] = pix[src+2] // R
			img.Pix[dst+1] = pix[src+1] // G
			img.Pix[dst+2] = pix[src+0] // B
			img.Pix[dst+3] = 0xff
			src += 4
			dst += 4
		}
	}
	return img
}

// HalveRGBA downsamples by 2 using nearest neighbor on the raw Pix slices.
func HalveRGBA(src *image.RGBA) *image.RGBA {
	sb := src.Bounds()
	dw, dh := sb.Dx()/2, sb.Dy()/2
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		srcRow := (y * 2) * src.Stride
		dstRow := y * dst.Stride
		for x := 0; x < dw; x++ {
			si := srcRow + x*8
			di := dstRow + x*4
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return dst
}

// EvenAlign rounds a dimension down to the nearest even value, minimum 2.
// YUV 4:2:0 subsampling requires even luma dimensions.
func EvenAlign(v int) int {
	v &^= 1
	if v < 2 {
		v = 2
	}
	return v
}

// bgraToI420 converts a BGRA crop window into the planes of dst, decimating
// by factor (1 or 2). dst dimensions must equal the decimated, even-aligned
// crop size; rows and columns beyond the source are left black.
func bgraToI420(pix []byte, stride, x, y, w, h, factor int, dst *image.YCbCr) {
	db := dst.Bounds()
	dw, dh := db.Dx(), db.Dy()

	for dy := 0; dy < dh; dy++ {
		sy := y + dy*factor
		rowBase := sy * stride
		for dx := 0; dx < dw; dx++ {
			sx := x + dx*factor
			si := rowBase + sx*4
			yi := dy*dst.YStride + dx

			if dy*factor >= h || dx*factor >= w || si+3 >= len(pix) {
				dst.Y[yi] = 16
				if dx%2 == 0 && dy%2 == 0 {
					ci := (dy/2)*dst.CStride + dx/2
					dst.Cb[ci] = 128
					dst.Cr[ci] = 128
				}
				continue
			}

			b := int32(pix[si+0])
			g := int32(pix[si+1])
			r := int32(pix[si+2])

			// ITU-R BT.601, fixed point.
			yv := (66*r + 129*g + 25*b + 128) >> 8
			dst.Y[yi] = uint8(clamp8(yv + 16))

			if dx%2 == 0 && dy%2 == 0 {
				cb := (-38*r - 74*g + 112*b + 128) >> 8
				cr := (112*r - 94*g - 18*b + 128) >> 8
				ci := (dy/2)*dst.CStride + dx/2
				dst.Cb[ci] = uint8(clamp8(cb + 128))
				dst.Cr[ci] = uint8(clamp8(cr + 128))
			}
		}
	}
}

func clamp8(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
