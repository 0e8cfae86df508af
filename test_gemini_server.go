package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMIMEType   string   `json:"responseMimeType"`
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

func generateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	apiKey := r.Header.Get("x-goog-api-key")
	model := modelFromPath(r.URL.Path)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	var req generateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Error parsing request body", http.StatusBadRequest)
		return
	}

	prompt := ""
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		prompt = req.Contents[0].Parts[0].Text
	}

	wantsAudio := false
	for _, m := range req.GenerationConfig.ResponseModalities {
		if m == "AUDIO" {
			wantsAudio = true
		}
	}

	log.Printf("🤖 GENERATE REQUEST RECEIVED:")
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  📊 Basic Info:")
	log.Printf("    Model: %s", model)
	log.Printf("    API Key Present: %v", apiKey != "")
	log.Printf("    Request Size: %d bytes", len(body))
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  📝 Prompt (first 120 chars):")
	log.Printf("    %s", truncate(prompt, 120))
	log.Printf("  ═══════════════════════════════════")
	log.Printf("  🎛️  Generation Config:")
	log.Printf("    Response MIME Type: %s", req.GenerationConfig.ResponseMIMEType)
	log.Printf("    Wants Audio: %v", wantsAudio)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	var payload string
	switch {
	case wantsAudio:
		// One second of 24 kHz mono silence
		payload = audioResponse(make([]byte, 48000))
		log.Printf("✅ AUDIO RESPONSE SENT: 48000 PCM bytes")
	case req.GenerationConfig.ResponseMIMEType == "application/json" && strings.Contains(prompt, "scriptwriter"):
		payload = textResponse(`[{"speaker":"Host 1","line":"Good morning, you are listening to the test broadcast."},` +
			`{"speaker":"Host 2","line":"And what a broadcast it will be."},` +
			`{"speaker":"Sound Effect","line":"Upbeat jingle"}]`)
		log.Printf("✅ SCRIPT RESPONSE SENT: 3 lines")
	default:
		payload = textResponse(`[{"headline":"Test headline one","summary":"A short summary of the first story."},` +
			`{"headline":"Test headline two","summary":"A short summary of the second story."}]`)
		log.Printf("✅ NEWS RESPONSE SENT: 2 items")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, payload)
	log.Println("---")
}

func textResponse(text string) string {
	data, _ := json.Marshal(text)
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, data)
}

func audioResponse(pcm []byte) string {
	encoded := base64.StdEncoding.EncodeToString(pcm)
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"audio/pcm","data":"%s"}}]}}]}`, encoded)
}

func modelFromPath(path string) string {
	// Path looks like /v1beta/models/{model}:generateContent
	idx := strings.LastIndex(path, "/models/")
	if idx < 0 {
		return "unknown"
	}
	model := path[idx+len("/models/"):]
	return strings.TrimSuffix(model, ":generateContent")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func main() {
	http.HandleFunc("/v1beta/models/", generateHandler)

	port := ":9000"
	log.Printf("🚀 Test Gemini Server starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/v1beta/models/{model}:generateContent", port)
	log.Println("💡 Update your config to use base_url: http://localhost:9000/v1beta")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
