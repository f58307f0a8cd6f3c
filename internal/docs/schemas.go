package docs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vnmchuo/doc-gateway/internal/parser"
)

const receiptPrompt = "When generating structured data, convert all date-related fields to the format YYYY-MM-DD. If the image does NOT contain a valid receipt or invoice, leave all fields empty."

func receiptSchema() *parser.Schema {
	return &parser.Schema{
		Type:     parser.TypeObject,
		Required: []string{"invoice_date", "total_amount", "invoice_number", "merchant_name"},
		Properties: map[string]*parser.Schema{
			"invoice_date":   {Type: parser.TypeString},
			"total_amount":   {Type: parser.TypeNumber},
			"invoice_number": {Type: parser.TypeString},
			"merchant_name":  {Type: parser.TypeString},
		},
	}
}

const claimPromptBase = "Extract structured data from this claim-related image. Convert all date-related fields to the format YYYY-MM-DD."

func defaultClaimFields() map[string]string {
	return map[string]string{
		"date":         "date",
		"invoice_no":   "string",
		"total_amount": "string",
	}
}

func claimPrompt(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(claimPromptBase)
	b.WriteString("\nInclude the following fields:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s (%s)\n", name, fields[name])
	}
	return b.String()
}

const resumePrompt = "Extract structured information from this resume/CV document. " +
	"Return all fields in JSON. Standard fields include:\n" +
	"- name\n- phone\n- email\n- address\n- skills\n- years_of_experience\n" +
	"- education\n- work_experience\n- languages"

func resumeSchema() *parser.Schema {
	return &parser.Schema{
		Type: parser.TypeObject,
		Properties: map[string]*parser.Schema{
			"name":    {Type: parser.TypeString},
			"phone":   {Type: parser.TypeString},
			"email":   {Type: parser.TypeString},
			"address": {Type: parser.TypeString},
			"skills": {
				Type:  parser.TypeArray,
				Items: &parser.Schema{Type: parser.TypeString},
			},
			"years_of_experience": {Type: parser.TypeNumber},
			"education": {
				Type: parser.TypeArray,
				Items: &parser.Schema{
					Type: parser.TypeObject,
					Properties: map[string]*parser.Schema{
						"college_university": {Type: parser.TypeString},
						"qualification":      {Type: parser.TypeString},
						"grade":              {Type: parser.TypeString},
						"cgpa":               {Type: parser.TypeNumber},
						"major":              {Type: parser.TypeString},
						"completion_year":    {Type: parser.TypeString},
						"field_of_study": {
							Type:  parser.TypeArray,
							Items: &parser.Schema{Type: parser.TypeString},
						},
					},
				},
			},
			"work_experience": {
				Type: parser.TypeArray,
				Items: &parser.Schema{
					Type: parser.TypeObject,
					Properties: map[string]*parser.Schema{
						"company":     {Type: parser.TypeString},
						"role":        {Type: parser.TypeString},
						"start_date":  {Type: parser.TypeString},
						"end_date":    {Type: parser.TypeString},
						"description": {Type: parser.TypeString},
					},
				},
			},
			"languages": {
				Type: parser.TypeArray,
				Items: &parser.Schema{
					Type: parser.TypeObject,
					Properties: map[string]*parser.Schema{
						"language": {Type: parser.TypeString},
						"spoken":   {Type: parser.TypeNumber},
						"written":  {Type: parser.TypeNumber},
					},
				},
			},
		},
	}
}
