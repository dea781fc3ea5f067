package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/wendy202020205/Sistema-Automatizado-de-Parqueadero/internal/domain"
)

// LPRService nhận dạng biển số từ ảnh chụp tại cổng qua Rekognition
// DetectText. Kết quả chỉ là gợi ý điền sẵn cho nhân viên, đăng ký vào/ra
// vẫn đi qua validation biển số thông thường.
type LPRService struct {
	rekognitionClient *rekognition.Client
}

func NewLPRService(rekClient *rekognition.Client) *LPRService {
	return &LPRService{rekognitionClient: rekClient}
}

// ProcessImageForLPR nhận ảnh dưới dạng bytes, gọi Rekognition và trích
// xuất biển số khớp định dạng với độ tin cậy cao nhất.
func (s *LPRService) ProcessImageForLPR(ctx context.Context, imageBytes []byte) (string, float32, error) {
	if s.rekognitionClient == nil {
		return "", 0, fmt.Errorf("Rekognition client chưa được khởi tạo")
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{
			Bytes: imageBytes,
		},
	}

	log.Println("LPRService: Đang gọi Rekognition DetectText...")
	result, err := s.rekognitionClient.DetectText(ctx, input)
	if err != nil {
		log.Printf("LPRService: Lỗi khi gọi Rekognition DetectText: %v", err)
		return "", 0, fmt.Errorf("lỗi Rekognition: %w", err)
	}

	log.Printf("LPRService: Rekognition trả về %d khối văn bản.", len(result.TextDetections))
	var detectedTexts []string
	var bestPlate string
	var maxConfidence float32

	for _, textDetection := range result.TextDetections {
		if textDetection.Type != types.TextTypesLine && textDetection.Type != types.TextTypesWord {
			continue
		}
		if textDetection.DetectedText == nil || textDetection.Confidence == nil {
			continue
		}
		candidate := domain.NormalizePlate(strings.ReplaceAll(*textDetection.DetectedText, " ", ""))
		detectedTexts = append(detectedTexts, fmt.Sprintf("%s (%.2f)", candidate, *textDetection.Confidence))

		if domain.ValidPlate(candidate) && *textDetection.Confidence > maxConfidence {
			maxConfidence = *textDetection.Confidence
			bestPlate = candidate
		}
	}

	if bestPlate != "" {
		log.Printf("LPRService: Biển số được chọn: '%s' với độ tin cậy: %.2f", bestPlate, maxConfidence)
		return bestPlate, maxConfidence, nil
	}

	log.Println("LPRService: Không tìm thấy biển số nào khớp định dạng từ văn bản nhận dạng.")
	return "", 0, fmt.Errorf("không nhận dạng được biển số từ ảnh (Văn bản: %s)", strings.Join(detectedTexts, ", "))
}
