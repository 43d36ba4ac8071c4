package distrain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

func JsonMarshal(x interface{}) []byte {
	bytes, err := json.Marshal(x)
	if err != nil {
		panic(err)
	}
	return bytes
}

func JsonUnmarshal(bytes []byte, x interface{}) {
	err := json.Unmarshal(bytes, x)
	if err != nil {
		panic(err)
	}
}

func JsonResponse(w http.ResponseWriter, x interface{}) {
	bytes := JsonMarshal(x)
	w.Header().Set("Content-Type", "application/json")
	w.Write(bytes)
}

func ParseJsonRequest(w http.ResponseWriter, r *http.Request, x interface{}) error {
	bytes, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("json decode error: %v", err), 400)
		return err
	}
	if err := json.Unmarshal(bytes, x); err != nil {
		http.Error(w, fmt.Sprintf("json decode error: %v", err), 400)
		return err
	}
	return nil
}

func ParseJsonResponse(resp *http.Response, response interface{}) error {
	bytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error performing HTTP request: %v", err)
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bytes))
	}
	if response != nil {
		if err := json.Unmarshal(bytes, response); err != nil {
			return SerializationError{Reason: fmt.Sprintf("bad response payload: %v", err)}
		}
	}
	return nil
}

func JsonGet(baseURL string, path string, response interface{}) error {
	resp, err := http.Get(baseURL + path)
	if err != nil {
		return fmt.Errorf("error performing HTTP request: %v", err)
	}
	err = ParseJsonResponse(resp, response)
	if err != nil {
		return fmt.Errorf("[GET %s] %v", baseURL+path, err)
	}
	return nil
}

func JsonPost(baseURL string, path string, request interface{}, response interface{}) error {
	var body io.Reader
	if request != nil {
		body = bytes.NewBuffer(JsonMarshal(request))
	}
	resp, err := http.Post(baseURL+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("error performing HTTP request (%s): %v", baseURL+path, err)
	}
	err = ParseJsonResponse(resp, response)
	if err != nil {
		return fmt.Errorf("[POST %s] %v", baseURL+path, err)
	}
	return nil
}

func ParseInt(str string) int {
	x, err := strconv.Atoi(str)
	if err != nil {
		panic(err)
	}
	return x
}

// RunCommand runs an external command, logging its combined output line by
// line under the given prefix. Used for cluster filesystem transfers.
func RunCommand(prefix string, command string, args ...string) error {
	log.Printf("[%s] %s %v", prefix, command, args)
	out, err := exec.Command(command, args...).CombinedOutput()
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			log.Printf("[%s] %s", prefix, line)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %v", command, err)
	}
	return nil
}

func FileExists(fname string) bool {
	_, err := os.Stat(fname)
	return err == nil
}
