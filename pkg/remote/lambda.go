// Copyright 2025 The Launcher Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote executes agent prompts through a serverless function
// instead of in-process provider clients. BEDROCK always dispatches here;
// other providers do when their instance opts in.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/agenthub/launcher/pkg/config"
	"github.com/agenthub/launcher/pkg/llms"
	"github.com/agenthub/launcher/pkg/store"
)

// Request is the wire format sent to the remote function.
type Request struct {
	Provider     string         `json:"provider"`
	ModelName    string         `json:"model_name"`
	APIKey       string         `json:"api_key,omitempty"`
	TargetURL    string         `json:"target_url,omitempty"`
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	AgentType    string         `json:"agent_type"`
	AgentName    string         `json:"agent_name"`
	EnableTools  bool           `json:"enable_tools"`
	Context      map[string]any `json:"context,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Temperature  float64        `json:"temperature,omitempty"`
}

// Response is the remote function's envelope.
type Response struct {
	Response             string         `json:"response"`
	Provider             string         `json:"provider"`
	Model                string         `json:"model"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	Timestamp            string         `json:"timestamp,omitempty"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds,omitempty"`
	TokenUsage           *llms.Usage    `json:"token_usage,omitempty"`
	Error                string         `json:"error,omitempty"`
}

// gatewayEnvelope is the API-gateway-style wrapper some deployments return.
type gatewayEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// LambdaAPI is the slice of the AWS Lambda client the invoker needs.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Invoker dispatches prompts to the configured remote function.
type Invoker struct {
	client       LambdaAPI
	functionName string
	bedrockModel string
	logger       *slog.Logger
}

// NewInvoker builds an Invoker from the remote configuration.
func NewInvoker(ctx context.Context, cfg config.RemoteConfig, logger *slog.Logger) (*Invoker, error) {
	if cfg.FunctionName == "" {
		return nil, fmt.Errorf("remote function name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("remote region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewInvokerWithClient(lambda.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewInvokerWithClient wires an explicit Lambda client, used in tests.
func NewInvokerWithClient(client LambdaAPI, cfg config.RemoteConfig, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		client:       client,
		functionName: cfg.FunctionName,
		bedrockModel: cfg.BedrockModelID,
		logger:       logger,
	}
}

// BuildRequest assembles the remote payload for an agent instance. BEDROCK
// instances fall back to the globally configured model id when the instance
// leaves it blank, and never carry an API key.
func (i *Invoker) BuildRequest(inst *store.AgentInstance, prompt, systemPrompt string, llmReq *llms.Request) *Request {
	req := &Request{
		Provider:     string(inst.Provider),
		ModelName:    inst.ModelName,
		APIKey:       inst.APIKey,
		TargetURL:    inst.TargetURL,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		AgentType:    string(inst.AgentType),
		AgentName:    inst.FriendlyName,
	}
	if llmReq != nil {
		req.MaxTokens = llmReq.MaxTokens
		req.Temperature = llmReq.Temperature
	}
	if inst.Provider == store.ProviderBedrock {
		req.APIKey = ""
		if req.ModelName == "" {
			req.ModelName = i.bedrockModel
		}
	}
	return req
}

// Invoke runs the remote function synchronously and normalizes the envelope.
func (i *Invoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal remote request: %w", err)
	}

	i.logger.Debug("invoking remote function",
		"function", i.functionName, "provider", req.Provider, "model", req.ModelName)

	out, err := i.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &i.functionName,
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("remote invocation failed: %w", err)
	}

	if out.FunctionError != nil {
		return nil, fmt.Errorf("remote function error: %s: %s", *out.FunctionError, string(out.Payload))
	}

	return decodeResponse(out.Payload)
}

// decodeResponse handles both direct responses and API-gateway envelopes.
func decodeResponse(payload []byte) (*Response, error) {
	var envelope gatewayEnvelope
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.StatusCode != 0 {
		if envelope.StatusCode != 200 {
			return nil, fmt.Errorf("remote function returned status %d: %s", envelope.StatusCode, envelope.Body)
		}
		payload = []byte(envelope.Body)
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode remote response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote execution error: %s", resp.Error)
	}
	if resp.Response == "" {
		return nil, fmt.Errorf("remote response is empty")
	}
	return &resp, nil
}
