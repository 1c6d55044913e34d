package gateway

import (
	"fmt"

	"parallelcamera/internal/store"
)

const (
	describePrompt        = "请用中文详细描述这张照片。"
	describeLocationHint  = "\n\n照片拍摄于坐标: 纬度 %v, 经度 %v。请在描述中自然地融入地理位置信息。"
	describeCharacterHint = "\n\n注意：用户希望将名为\"%s\"的角色融入到场景中。这是该角色的参考照片。在描述中自然地提及这个角色出现在场景中。"

	augmentPrompt = `基于以下场景描述，请添加一个脑洞大开、富有创意和想象力的元素。这个元素应该：
1. 与原场景形成有趣的对比或融合
2. 具有超现实或奇幻的特点
3. 能够激发观者的想象力

请直接描述这个创意元素，不要解释为什么选择它。用2-3句话描述即可。

原始描述: %s`

	generateCreativePrompt  = "基于以下描述，生成一张充满创意和想象力的照片：%s"
	generateRealisticPrompt = "基于以下描述，生成一张写实的照片：%s"
	generateCharacterSuffix = " CRITICAL: Include the person from the reference photo."
	generateUserPromptHint  = "\n\n用户额外要求: %s"

	transcribePrompt = "请将这段音频转换为文字。只输出识别出的文字内容，不要添加任何其他说明。如果是中文，请输出中文。"
)

func buildDescribePrompt(req DescribeRequest) string {
	prompt := describePrompt
	if req.Location != nil {
		prompt += fmt.Sprintf(describeLocationHint, req.Location.Latitude, req.Location.Longitude)
	}
	if hasCharacterImage(req.Character) {
		prompt += fmt.Sprintf(describeCharacterHint, req.Character.Name)
	}
	return prompt
}

func buildAugmentPrompt(description string) string {
	return fmt.Sprintf(augmentPrompt, description)
}

func buildGeneratePrompt(req GenerateRequest) string {
	var prompt string
	if req.Mode == store.ModeCreative {
		prompt = fmt.Sprintf(generateCreativePrompt, req.Description)
	} else {
		prompt = fmt.Sprintf(generateRealisticPrompt, req.Description)
	}
	if req.Character != nil {
		prompt += generateCharacterSuffix
	}
	if req.UserPrompt != "" {
		prompt += fmt.Sprintf(generateUserPromptHint, req.UserPrompt)
	}
	return prompt
}

// includesOriginal reports whether the captured photo is sent along with the
// generation prompt.
func includesOriginal(req GenerateRequest) bool {
	return req.OriginalImage != "" && (req.Mode == store.ModeCreative || req.Mode == store.ModeMeta)
}

func hasCharacterImage(ref *CharacterRef) bool {
	return ref != nil && ref.ReferenceImage != ""
}
