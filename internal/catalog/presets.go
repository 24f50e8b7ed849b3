package catalog

import "session-scribe/internal/domain"

const mib = 1024 * 1024

// builtinArtifacts returns the built-in presets for one family, available
// for one-click download without any catalog file.
func builtinArtifacts(family domain.ModelFamily) []domain.Artifact {
	switch family {
	case domain.FamilyWhisper:
		return whisperPresets
	case domain.FamilyParakeet:
		return parakeetPresets
	case domain.FamilySummarizer:
		return summarizerPresets
	default:
		return nil
	}
}

var whisperPresets = []domain.Artifact{
	{
		ID:                "whisper-tiny",
		Family:            domain.FamilyWhisper,
		Name:              "Tiny (Multilingual)",
		FileName:          "ggml-tiny.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
		DeclaredSizeBytes: 39 * mib,
		Description:       "Fastest processing, good for real-time use.",
	},
	{
		ID:                "whisper-base",
		Family:            domain.FamilyWhisper,
		Name:              "Base (Multilingual)",
		FileName:          "ggml-base.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		DeclaredSizeBytes: 142 * mib,
		Description:       "Good balance of speed and accuracy.",
	},
	{
		ID:                "whisper-small",
		Family:            domain.FamilyWhisper,
		Name:              "Small (Multilingual)",
		FileName:          "ggml-small.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		DeclaredSizeBytes: 466 * mib,
		Description:       "Better accuracy, moderate speed.",
	},
	{
		ID:                "whisper-medium",
		Family:            domain.FamilyWhisper,
		Name:              "Medium (Multilingual)",
		FileName:          "ggml-medium.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
		DeclaredSizeBytes: 1420 * mib,
		Description:       "High accuracy for professional use.",
	},
	{
		ID:                "whisper-large-v3-turbo",
		Family:            domain.FamilyWhisper,
		Name:              "Large v3 Turbo",
		FileName:          "ggml-large-v3-turbo.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
		DeclaredSizeBytes: 809 * mib,
		Description:       "Best accuracy with improved speed.",
	},
	{
		ID:                "whisper-large-v3",
		Family:            domain.FamilyWhisper,
		Name:              "Large v3",
		FileName:          "ggml-large-v3.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
		DeclaredSizeBytes: 2870 * mib,
		Description:       "Best accuracy, latest large model.",
	},
	{
		ID:                "whisper-base-q5",
		Family:            domain.FamilyWhisper,
		Name:              "Base Quantized",
		FileName:          "ggml-base-q5_0.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_0.bin",
		DeclaredSizeBytes: 85 * mib,
		Description:       "Quantized base model, good speed/accuracy balance.",
	},
	{
		ID:                "whisper-large-v3-turbo-q5",
		Family:            domain.FamilyWhisper,
		Name:              "Large v3 Turbo Quantized",
		FileName:          "ggml-large-v3-turbo-q5_0.bin",
		URL:               "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo-q5_0.bin",
		DeclaredSizeBytes: 574 * mib,
		Description:       "Quantized large model, best balance.",
	},
}

var parakeetPresets = []domain.Artifact{
	{
		ID:                "parakeet-tdt-0.6b-v3-int8",
		Family:            domain.FamilyParakeet,
		Name:              "Parakeet TDT 0.6B v3 (int8)",
		FileName:          "parakeet-tdt-0.6b-v3-int8.tar.gz",
		URL:               "https://huggingface.co/istupakov/parakeet-tdt-0.6b-v3-onnx/resolve/main/parakeet-tdt-0.6b-v3-int8.tar.gz",
		DeclaredSizeBytes: 670 * mib,
		Description:       "Latest version with int8 quantization, real-time capable.",
	},
	{
		ID:                "parakeet-tdt-0.6b-v2-int8",
		Family:            domain.FamilyParakeet,
		Name:              "Parakeet TDT 0.6B v2 (int8)",
		FileName:          "parakeet-tdt-0.6b-v2-int8.tar.gz",
		URL:               "https://huggingface.co/istupakov/parakeet-tdt-0.6b-v2-onnx/resolve/main/parakeet-tdt-0.6b-v2-int8.tar.gz",
		DeclaredSizeBytes: 661 * mib,
		Description:       "Previous version, good balance of speed and accuracy.",
	},
}

var summarizerPresets = []domain.Artifact{
	{
		ID:                "summarizer-llama-3.2-1b",
		Family:            domain.FamilySummarizer,
		Name:              "Llama 3.2 1B Instruct",
		FileName:          "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		URL:               "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		DeclaredSizeBytes: 808 * mib,
		Description:       "Compact summarizer, fast on CPU.",
	},
	{
		ID:                "summarizer-llama-3.2-3b",
		Family:            domain.FamilySummarizer,
		Name:              "Llama 3.2 3B Instruct",
		FileName:          "Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		URL:               "https://huggingface.co/bartowski/Llama-3.2-3B-Instruct-GGUF/resolve/main/Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		DeclaredSizeBytes: 2020 * mib,
		Description:       "Higher quality summaries, slower on CPU.",
	},
	{
		ID:                "summarizer-qwen-2.5-3b",
		Family:            domain.FamilySummarizer,
		Name:              "Qwen 2.5 3B Instruct",
		FileName:          "Qwen2.5-3B-Instruct-Q4_K_M.gguf",
		URL:               "https://huggingface.co/bartowski/Qwen2.5-3B-Instruct-GGUF/resolve/main/Qwen2.5-3B-Instruct-Q4_K_M.gguf",
		DeclaredSizeBytes: 1930 * mib,
		Description:       "Strong multilingual summarization.",
	},
}
