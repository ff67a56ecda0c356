package panel

import (
	"image"
	"image/color"
	"image/draw"
)

// DefaultBorderVarianceThreshold - 0~255 채널 값 기준 분산 임계값
const DefaultBorderVarianceThreshold = 10.0

// StripBorders - 가장자리의 단색 여백 제거
//
// 위/아래 행과 좌/우 열을 바깥에서부터 훑으며 분산이 threshold 이하인 줄을 잘라낸다.
// 한 방향을 잘라내면 다른 방향 줄의 분산이 바뀔 수 있으므로 더 이상 잘라낼 줄이
// 없을 때까지 반복하고, 그 결과 다시 호출해도 같은 이미지가 나온다.
// 잘라낼 여백이 없거나 이미지 전체가 단색이면 입력 이미지를 그대로 반환한다.
func StripBorders(img image.Image, threshold float64) image.Image {
	b := img.Bounds()
	top, bottom, left, right := b.Min.Y, b.Max.Y, b.Min.X, b.Max.X

	for changed := true; changed; {
		changed = false
		for top < bottom && rowVariance(img, top, left, right) <= threshold {
			top++
			changed = true
		}
		for bottom > top && rowVariance(img, bottom-1, left, right) <= threshold {
			bottom--
			changed = true
		}
		for left < right && columnVariance(img, left, top, bottom) <= threshold {
			left++
			changed = true
		}
		for right > left && columnVariance(img, right-1, top, bottom) <= threshold {
			right--
			changed = true
		}
	}

	if top >= bottom || left >= right {
		return img
	}
	crop := image.Rect(left, top, right, bottom)
	if crop == b {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(out, out.Bounds(), img, crop.Min, draw.Src)
	return out
}

func rowVariance(img image.Image, y, x0, x1 int) float64 {
	var acc channelStats
	for x := x0; x < x1; x++ {
		acc.add(img.At(x, y))
	}
	return acc.maxVariance()
}

func columnVariance(img image.Image, x, y0, y1 int) float64 {
	var acc channelStats
	for y := y0; y < y1; y++ {
		acc.add(img.At(x, y))
	}
	return acc.maxVariance()
}

// channelStats - 채널별 분산 누적 (R, G, B, A)
type channelStats struct {
	n     float64
	sum   [4]float64
	sumSq [4]float64
}

func (s *channelStats) add(c color.Color) {
	p := color.NRGBAModel.Convert(c).(color.NRGBA)
	for i, v := range [4]float64{float64(p.R), float64(p.G), float64(p.B), float64(p.A)} {
		s.sum[i] += v
		s.sumSq[i] += v * v
	}
	s.n++
}

// maxVariance - 채널 중 가장 큰 분산
// 단색 줄은 어느 채널이든 0이 되므로 색이 있는 테두리도 잡힌다
func (s *channelStats) maxVariance() float64 {
	if s.n == 0 {
		return 0
	}
	maxVar := 0.0
	for i := range s.sum {
		mean := s.sum[i] / s.n
		v := s.sumSq[i]/s.n - mean*mean
		if v > maxVar {
			maxVar = v
		}
	}
	return maxVar
}
