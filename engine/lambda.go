package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"
)

// LambdaInvoker is the subset of the Lambda client LambdaEngine uses.
type LambdaInvoker interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaConfig configures a LambdaEngine.
type LambdaConfig struct {
	FunctionName string // Name or ARN of the model Lambda
	Region       string // Overrides the default AWS region when set
}

// LambdaEngine invokes a model Lambda that wraps the engine and tokenizer.
// Every call is a synchronous invocation with an "action" field selecting
// translate_batch, tokenize, detokenize or languages.
type LambdaEngine struct {
	client       LambdaInvoker
	functionName string

	mu         sync.RWMutex
	langTokens map[string]string
}

// lambdaRequest is the payload sent to the model Lambda.
type lambdaRequest struct {
	Action string `json:"action"`

	Source            [][]string `json:"source,omitempty"`
	TargetPrefix      [][]string `json:"target_prefix,omitempty"`
	BeamSize          int        `json:"beam_size,omitempty"`
	MaxDecodingLength int        `json:"max_decoding_length,omitempty"`
	RepetitionPenalty float64    `json:"repetition_penalty,omitempty"`
	NoRepeatNgramSize int        `json:"no_repeat_ngram_size,omitempty"`

	Text        string   `json:"text,omitempty"`
	Lang        string   `json:"lang,omitempty"`
	Tokens      []string `json:"tokens,omitempty"`
	SkipSpecial bool     `json:"skip_special,omitempty"`
}

// lambdaResponse is the payload returned by the model Lambda.
type lambdaResponse struct {
	Hypotheses [][]string        `json:"hypotheses,omitempty"`
	Tokens     []string          `json:"tokens,omitempty"`
	Text       string            `json:"text,omitempty"`
	Languages  map[string]string `json:"languages,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// NewLambdaEngine creates an engine backed by the default AWS credentials
// chain.
func NewLambdaEngine(ctx context.Context, cfg LambdaConfig) (*LambdaEngine, error) {
	if cfg.FunctionName == "" {
		return nil, &nmtflow.ConfigError{Message: "lambda function name is required"}
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &nmtflow.ConfigError{Message: "failed to load AWS config", Cause: err}
	}

	return NewLambdaEngineFromClient(lambda.NewFromConfig(awsCfg), cfg.FunctionName), nil
}

// NewLambdaEngineFromClient creates an engine that uses an existing client.
func NewLambdaEngineFromClient(client LambdaInvoker, functionName string) *LambdaEngine {
	return &LambdaEngine{
		client:       client,
		functionName: functionName,
		langTokens:   make(map[string]string),
	}
}

// LambdaLoader returns an EngineLoader that creates the engine and fetches
// its language tokens.
func LambdaLoader(cfg LambdaConfig) nmtflow.EngineLoader {
	return func(ctx context.Context) (nmtflow.Engine, nmtflow.Tokenizer, error) {
		e, err := NewLambdaEngine(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := e.LoadLanguages(ctx); err != nil {
			return nil, nil, err
		}
		return e, e, nil
	}
}

// DecodeBatch implements Engine.
func (e *LambdaEngine) DecodeBatch(ctx context.Context, req DecodeRequest) ([][]string, error) {
	resp, err := e.invoke(ctx, lambdaRequest{
		Action:            "translate_batch",
		Source:            req.Source,
		TargetPrefix:      req.TargetPrefix,
		BeamSize:          req.BeamWidth,
		MaxDecodingLength: req.MaxNewTokens,
		RepetitionPenalty: req.RepetitionPenalty,
		NoRepeatNgramSize: req.NoRepeatNgramSize,
	})
	if err != nil {
		return nil, err
	}
	return resp.Hypotheses, nil
}

// Encode implements Tokenizer.
func (e *LambdaEngine) Encode(ctx context.Context, text, lang string) ([]string, error) {
	resp, err := e.invoke(ctx, lambdaRequest{Action: "tokenize", Text: text, Lang: lang})
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// Decode implements Tokenizer.
func (e *LambdaEngine) Decode(ctx context.Context, tokens []string, skipSpecial bool) (string, error) {
	resp, err := e.invoke(ctx, lambdaRequest{Action: "detokenize", Tokens: tokens, SkipSpecial: skipSpecial})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// LanguageToken implements Tokenizer from the map fetched by LoadLanguages.
func (e *LambdaEngine) LanguageToken(lang string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tok, ok := e.langTokens[lang]
	return tok, ok
}

// LoadLanguages fetches the language token map from the model Lambda.
func (e *LambdaEngine) LoadLanguages(ctx context.Context) error {
	resp, err := e.invoke(ctx, lambdaRequest{Action: "languages"})
	if err != nil {
		return err
	}
	if len(resp.Languages) == 0 {
		return &nmtflow.EngineError{Message: "model lambda reported no languages"}
	}

	e.mu.Lock()
	e.langTokens = resp.Languages
	e.mu.Unlock()
	return nil
}

// invoke calls the model Lambda with req.
func (e *LambdaEngine) invoke(ctx context.Context, req lambdaRequest) (*lambdaResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &nmtflow.EngineError{Message: "failed to marshal request", Cause: err}
	}

	result, err := e.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(e.functionName),
		Payload:      payload,
	})
	if err != nil {
		return nil, &nmtflow.EngineError{
			Message:   fmt.Sprintf("failed to invoke %s", e.functionName),
			Cause:     err,
			Retryable: isRetryableAWSError(err),
		}
	}

	if result.FunctionError != nil {
		return nil, &nmtflow.EngineError{
			Message:   fmt.Sprintf("lambda error: %s: %s", *result.FunctionError, strings.TrimSpace(string(result.Payload))),
			Retryable: true,
		}
	}

	var resp lambdaResponse
	if err := json.Unmarshal(result.Payload, &resp); err != nil {
		return nil, &nmtflow.EngineError{Message: "failed to parse response", Cause: err}
	}
	if resp.Error != "" {
		return nil, &nmtflow.EngineError{Message: "model error: " + resp.Error}
	}
	return &resp, nil
}

func isRetryableAWSError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ServiceException", "ResourceNotReadyException",
			"EC2ThrottledException", "ENILimitReachedException":
			return true
		}
		return false
	}
	return isRetryableError(err)
}

var (
	_ Engine    = (*LambdaEngine)(nil)
	_ Tokenizer = (*LambdaEngine)(nil)
)
