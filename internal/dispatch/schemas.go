package dispatch

// Declared input schemas per service. Anything a client sends outside
// these allow-lists is dropped before the payload reaches the provider.

var ChatSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"model":       {Type: "string"},
		"temperature": {Type: "number"},
		"max_tokens":  {Type: "number"},
		"messages": {
			Type: "array",
			Items: &Schema{
				Type: "object",
				Properties: map[string]*Schema{
					"role":    {Type: "string"},
					"content": {Type: "string"},
				},
			},
		},
	},
}

var ChatResultSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"id":      {Type: "string"},
		"choices": {Type: "array", Items: &Schema{Type: "object"}},
		"usage":   {Type: "object"},
	},
}

var ImageSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"prompt":          {Type: "string"},
		"negative_prompt": {Type: "string"},
		"width":           {Type: "number"},
		"height":          {Type: "number"},
		"steps":           {Type: "number"},
		"seed":            {Type: "number"},
	},
}

var ImageResultSchema = &Schema{
	Type: "object",
	Properties: map[string]*Schema{
		"id":     {Type: "string"},
		"status": {Type: "string"},
		"images": {Type: "array", Items: &Schema{Type: "string"}},
	},
}
