package toolservice_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emcie-io/agentrt/internal/toolservice"
)

func TestParseToolID(t *testing.T) {
	id, err := toolservice.ParseToolID("local:read_account_balance")
	require.NoError(t, err)
	require.Equal(t, "local", id.ServiceName)
	require.Equal(t, "read_account_balance", id.ToolName)
	require.Equal(t, "local:read_account_balance", id.String())

	_, err = toolservice.ParseToolID("no-colon")
	require.ErrorIs(t, err, toolservice.ErrInvalidToolID)
}

func TestLocalService_RegisterAndCall(t *testing.T) {
	ctx := context.Background()
	svc := toolservice.NewLocalService()
	svc.Register(toolservice.ToolDescriptor{Name: "read_account_balance"}, func(_ context.Context, _ toolservice.ToolContext, _ map[string]any) (toolservice.ToolResult, error) {
		return toolservice.ToolResult{Data: 999}, nil
	})

	tools, err := svc.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	result, err := svc.Call(ctx, "read_account_balance", toolservice.ToolContext{}, nil)
	require.NoError(t, err)
	require.Equal(t, 999, result.Data)

	_, err = svc.Call(ctx, "missing", toolservice.ToolContext{}, nil)
	var toolErr *toolservice.Error
	require.ErrorAs(t, err, &toolErr)
}

func TestOpenAPIService_DerivesToolsFromOperations(t *testing.T) {
	doc := []byte(`{
		"paths": {
			"/balance/{account_id}": {
				"get": {
					"operationId": "getBalance",
					"parameters": [
						{"name": "account_id", "in": "path", "required": true, "schema": {"type": "string"}}
					]
				}
			}
		}
	}`)
	svc, err := toolservice.NewOpenAPIService("http://example.invalid", doc)
	require.NoError(t, err)

	tools, err := svc.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "getBalance", tools[0].Name)
	require.Contains(t, tools[0].Required, "account_id")
}

func TestOpenAPIService_Call_EscapesPathAndQueryParameters(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("note")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	doc := []byte(`{
		"paths": {
			"/accounts/{account_id}": {
				"get": {
					"operationId": "getAccount",
					"parameters": [
						{"name": "account_id", "in": "path", "required": true, "schema": {"type": "string"}},
						{"name": "note", "in": "query", "schema": {"type": "string"}}
					]
				}
			}
		}
	}`)
	svc, err := toolservice.NewOpenAPIService(server.URL, doc)
	require.NoError(t, err)

	_, err = svc.Call(context.Background(), "getAccount", toolservice.ToolContext{}, map[string]any{
		"account_id": "acct/42",
		"note":       "tip & trick",
	})
	require.NoError(t, err)
	require.Equal(t, "/accounts/acct%2F42", gotPath)
	require.Equal(t, "tip & trick", gotQuery)
}
