package aiprovider

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	transcribetypes "github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// AWSConfig configures the aws backend.
type AWSConfig struct {
	Region string
}

var transcribeLangCodes = map[string]transcribetypes.LanguageCode{
	"en": transcribetypes.LanguageCodeEnUs,
	"ja": transcribetypes.LanguageCodeJaJp,
	"zh": transcribetypes.LanguageCodeZhCn,
	"es": transcribetypes.LanguageCodeEsEs,
	"fr": transcribetypes.LanguageCodeFrFr,
	"de": transcribetypes.LanguageCodeDeDe,
	"ko": transcribetypes.LanguageCodeKoKr,
}

var pollyVoices = map[string]struct {
	VoiceID pollytypes.VoiceId
	Engine  pollytypes.Engine
}{
	"en": {pollytypes.VoiceIdMatthew, pollytypes.EngineNeural},
	"ja": {pollytypes.VoiceIdTakumi, pollytypes.EngineNeural},
	"zh": {pollytypes.VoiceIdZhiyu, pollytypes.EngineNeural},
	"es": {pollytypes.VoiceIdLucia, pollytypes.EngineNeural},
	"fr": {pollytypes.VoiceIdLea, pollytypes.EngineNeural},
	"de": {pollytypes.VoiceIdVicki, pollytypes.EngineNeural},
	"ko": {pollytypes.VoiceIdSeoyeon, pollytypes.EngineNeural},
}

// awsProvider implements Provider on top of Amazon Transcribe Streaming,
// Translate and Polly, buffering the already-complete per-utterance WAV
// through the streaming transcribe API as a single burst rather than a
// continuous stream, since C7 hands this backend one finished utterance
// at a time.
type awsProvider struct {
	transcribe *transcribestreaming.Client
	translate  *translate.Client
	polly      *polly.Client
}

func newAWSProvider(cfg AWSConfig) (*awsProvider, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &awsProvider{
		transcribe: transcribestreaming.NewFromConfig(awsCfg),
		translate:  translate.NewFromConfig(awsCfg),
		polly:      polly.NewFromConfig(awsCfg),
	}, nil
}

func (p *awsProvider) Transcribe(ctx context.Context, audio []byte, hintLang string) (string, error) {
	text, _, err := p.DetectLanguage(ctx, audio, hintLang)
	return text, err
}

// DetectLanguage transcribes in the hinted language (en-US when the hint
// has no Transcribe mapping, including "multi") and reports hintLang as
// the detected language; no automatic language identification is run.
func (p *awsProvider) DetectLanguage(ctx context.Context, audio []byte, hintLang string) (string, string, error) {
	pcm, sampleRate, err := wavToPCM16(audio)
	if err != nil {
		return "", "", fmt.Errorf("decode wav for transcribe streaming: %w", err)
	}

	langCode, ok := transcribeLangCodes[hintLang]
	if !ok {
		langCode = transcribetypes.LanguageCodeEnUs
	}

	resp, err := p.transcribe.StartStreamTranscription(ctx, &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         langCode,
		MediaEncoding:        transcribetypes.MediaEncodingPcm,
		MediaSampleRateHertz: awssdk.Int32(int32(sampleRate)),
	})
	if err != nil {
		return "", "", fmt.Errorf("start transcribe stream: %w", err)
	}
	stream := resp.GetStream()
	if stream == nil {
		return "", "", fmt.Errorf("transcribe stream is nil")
	}
	defer stream.Close()

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := stream.Send(sendCtx, &transcribetypes.AudioStreamMemberAudioEvent{
		Value: transcribetypes.AudioEvent{AudioChunk: pcm},
	}); err != nil {
		return "", "", fmt.Errorf("send audio event: %w", err)
	}
	_ = stream.Send(sendCtx, &transcribetypes.AudioStreamMemberAudioEvent{
		Value: transcribetypes.AudioEvent{AudioChunk: nil},
	})

	var finalText strings.Builder
	for event := range stream.Events() {
		te, ok := event.(*transcribetypes.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || te.Value.Transcript == nil {
			continue
		}
		for _, result := range te.Value.Transcript.Results {
			if result.IsPartial || len(result.Alternatives) == 0 {
				continue
			}
			finalText.WriteString(awssdk.ToString(result.Alternatives[0].Transcript))
		}
	}
	if err := stream.Err(); err != nil {
		return "", "", fmt.Errorf("transcribe stream: %w", err)
	}

	return filterNoise(finalText.String()), hintLang, nil
}

func (p *awsProvider) Translate(ctx context.Context, audio []byte, srcLang, tgtLang string) (TranslateResult, error) {
	original, _, err := p.DetectLanguage(ctx, audio, srcLang)
	if err != nil {
		return TranslateResult{}, err
	}
	if original == "" {
		return TranslateResult{}, nil
	}

	translated, err := p.TranslateText(ctx, original, srcLang, tgtLang, nil)
	if err != nil {
		return TranslateResult{OriginalText: original}, err
	}

	audioOut, err := p.synthesize(ctx, translated, tgtLang)
	if err != nil {
		// TTS failure degrades gracefully: text still ships, no audio.
		return TranslateResult{OriginalText: original, TranslatedText: translated}, nil
	}
	return TranslateResult{OriginalText: original, TranslatedText: translated, TranslatedAudio: audioOut}, nil
}

func (p *awsProvider) TranslateText(ctx context.Context, text, srcLang, tgtLang string, recentContext []string) (string, error) {
	if text == "" {
		return "", nil
	}
	if srcLang == tgtLang {
		return text, nil
	}

	result, err := p.translate.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               awssdk.String(text),
		SourceLanguageCode: awssdk.String(srcLang),
		TargetLanguageCode: awssdk.String(tgtLang),
	})
	if err != nil {
		return "", fmt.Errorf("translate text: %w", err)
	}
	return filterNoise(awssdk.ToString(result.TranslatedText)), nil
}

func (p *awsProvider) synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	voice, ok := pollyVoices[lang]
	if !ok {
		voice = pollyVoices["en"]
	}

	out, err := p.polly.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         awssdk.String(text),
		VoiceId:      voice.VoiceID,
		Engine:       voice.Engine,
		OutputFormat: pollytypes.OutputFormatPcm,
		SampleRate:   awssdk.String("16000"),
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	defer out.AudioStream.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.AudioStream); err != nil {
		return nil, fmt.Errorf("read polly audio stream: %w", err)
	}
	return buf.Bytes(), nil
}

// wavToPCM16 strips a canonical WAV header and returns the raw PCM16
// payload plus the sample rate, for handoff to the streaming transcribe
// API which wants raw PCM chunks, not a WAV container.
func wavToPCM16(wav []byte) ([]byte, int, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE blob")
	}
	sampleRate := int(binary.LittleEndian.Uint32(wav[24:28]))

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		dataStart := offset + 8
		if chunkID == "data" {
			end := dataStart + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[dataStart:end], sampleRate, nil
		}
		offset = dataStart + chunkSize
	}
	return nil, 0, fmt.Errorf("no data chunk found")
}
