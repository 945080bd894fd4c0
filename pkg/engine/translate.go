package engine

import (
	"encoding/base64"

	"github.com/rhuss/runcode/pkg/api"
	"github.com/rhuss/runcode/pkg/tools"
)

// toToolCall converts a host request into an executor call, assigning a
// call ID when the host sent none.
func toToolCall(req *api.ToolCallRequest, session string) tools.ToolCall {
	if req.ID == "" {
		req.ID = api.NewCallID()
	}
	return tools.ToolCall{
		ID:        req.ID,
		Name:      req.Name,
		Arguments: req.Arguments.String(),
		SessionID: session,
	}
}

// toResponse renders a tool result for the transports.
func toResponse(r *tools.ToolResult) *api.ToolCallResponse {
	delivery := r.Delivery
	if delivery == "" {
		delivery = api.DeliveryModel
	}

	resp := &api.ToolCallResponse{
		Object:      "tool_call.result",
		CallID:      r.CallID,
		Output:      r.Output,
		IsError:     r.IsError,
		Delivery:    delivery,
		EndTurn:     r.EndsTurn(),
		Status:      string(r.Status),
		Duplicate:   r.Duplicate,
		ExecutionID: r.ExecutionID,
	}
	for _, img := range r.Images {
		resp.Images = append(resp.Images, api.ImageData{
			MIMEType: img.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		})
	}
	return resp
}

func errorResponse(call tools.ToolCall, msg string) *api.ToolCallResponse {
	return toResponse(&tools.ToolResult{
		CallID:  call.ID,
		Output:  msg,
		IsError: true,
		Status:  api.ExecutionStatusFailure,
	})
}
