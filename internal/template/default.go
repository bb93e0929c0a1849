package template

// SystemTemplate frames every participant turn as an in-character contribution.
const SystemTemplate = `You are {{name}}, {{specialty}}.
{{backstory}}

You are taking part in a roundtable discussion with other experts. Stay in character,
speak from your own expertise, and react to what the others said. Be concise: two to
four sentences, no preamble, no headings.`

// ChatTurnTemplate asks for a free-text turn. The stance is derived from the wording.
const ChatTurnTemplate = `# Roundtable: {{topic}}
Round {{round}} of {{max_rounds}}

## Participants
{{participants}}

{{transcript}}
{{hooks}}
It is your turn, {{name}}. Give your perspective on the topic, building on or
challenging the previous contributions. Flag risks explicitly, say so when you
disagree, and propose concrete ideas when you have them.
{{extra}}`

// HybridTurnTemplate asks for a JSON object carrying an explicit stance.
const HybridTurnTemplate = `# Roundtable: {{topic}}
Round {{round}} of {{max_rounds}}

## Participants
{{participants}}

{{transcript}}
{{hooks}}
It is your turn, {{name}}. Reply with ONE JSON object and nothing else:

{"stance": "agree" | "disagree" | "risk" | "idea", "message": "your contribution"}

- "stance" summarizes your position relative to the discussion so far
- "message" is two to four sentences, in character
{{extra}}`

// SynthesisTemplate turns a complete transcript into an outcome record.
const SynthesisTemplate = `# Roundtable synthesis: {{topic}}

## Participants
{{participants}}

## Transcript
{{transcript}}

## Your Job
Synthesize the discussion into a decision record. Reply with ONE JSON object and
nothing else, using exactly these fields:

{
  "consensus": ["point everyone converged on"],
  "tensions": [{"between": ["Name A", "Name B"], "issue": "what they disagree on"}],
  "non_negotiables": ["constraint that any decision must respect"],
  "decision_options": [
    {
      "title": "short name",
      "description": "what this option means",
      "changes": ["what changes"],
      "unchanged": ["what stays the same"],
      "risk": "main risk of this option",
      "metrics": ["how success would be measured"]
    }
  ]
}

Give two or three decision options. Use participant names exactly as listed.
{{extra}}`
