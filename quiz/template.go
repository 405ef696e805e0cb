package quiz

// Template is the example document handed to users.
const Template = `{
  "all_q": [
    {
      "q": "'Truculent' means:",
      "o": ["Aggressive", "Genial"],
      "c": 0,
      "e": "Aggressive = belligerent, pugnacious"
    },
    {
      "q": "'Ineffable' means:",
      "o": ["Mundane", "Inexpressible"],
      "c": 1,
      "e": "Inexpressible = indescribable, unspeakable"
    },
    {
      "q": "What is the capital of Japan?",
      "o": ["Tokyo", "Osaka", "Kyoto"],
      "c": 0,
      "e": "Tokyo is the capital and largest city of Japan"
    },
    {
      "q": "Which language runs natively in web browsers?",
      "o": ["JavaScript", "Python", "Java", "C++"],
      "c": 0,
      "e": "JavaScript is the scripting language of the web"
    }
  ]
}`
