//go:build !js_eval

package settings

// NewJSEvaluator returns nil unless the binary is built with the js_eval tag.
// NewEvaluator("js", ...) reports the missing tag as an error instead.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	_ = newEvaluatorConfig("js", opts)
	return nil
}

func jsEvaluatorAvailable() bool {
	return false
}
